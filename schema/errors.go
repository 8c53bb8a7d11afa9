package schema

import "errors"

var (
	// ErrInvalidClient indicates an invalid client identifier.
	ErrInvalidClient = errors.New("invalid client")
	// ErrInvalidTab indicates an invalid tab identifier.
	ErrInvalidTab = errors.New("invalid tab")
	// ErrTabNotFound indicates a requested tab could not be found.
	ErrTabNotFound = errors.New("tab not found")
	// ErrUnknownChannel indicates no channel is registered for the identifier.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrHandshakeFailed indicates the terminal handshake was rejected or failed.
	ErrHandshakeFailed = errors.New("terminal handshake failed")
	// ErrConnectFailed indicates the terminal connect call was rejected or failed.
	ErrConnectFailed = errors.New("terminal connect failed")
	// ErrMalformedFrame indicates a data frame could not be decoded.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrCloseRejected indicates the remote did not accept an explicit close.
	ErrCloseRejected = errors.New("close rejected")
	// ErrNotConnected indicates the session has not reached the connected state.
	ErrNotConnected = errors.New("terminal not connected")
	// ErrSessionClosed indicates the session was closed or disposed.
	ErrSessionClosed = errors.New("terminal session closed")
	// ErrTransportClosed indicates the socket transport is no longer usable.
	ErrTransportClosed = errors.New("transport closed")
	// ErrClipboardEmpty indicates there is no buffered clipboard text to paste.
	ErrClipboardEmpty = errors.New("clipboard empty")
)

package terminal

import (
	"context"
	"encoding/json"

	"pkt.systems/channeldeck/schema"
)

// Remote call names.
const (
	MethodHandshake      = "terminal.handshake"
	MethodConnect        = "terminal.connect"
	MethodData           = "terminal.data"
	MethodConsumeConfirm = "terminal.consume_confirm"
	MethodClose          = "terminal.close"
)

// Transport is the socket surface a session needs. *transport.Client
// satisfies it.
type Transport interface {
	Connected() bool
	Join(ctx context.Context, clientID schema.ClientID) error
	Leave(clientID schema.ClientID)
	Subscribe(event string, fn func(json.RawMessage)) func()
	Call(ctx context.Context, method string, req any, resp any) error
}

// API issues the typed terminal calls.
type API struct {
	t Transport
}

// NewAPI wraps a transport.
func NewAPI(t Transport) API {
	return API{t: t}
}

// Handshake allocates or retrieves the client's terminal.
func (a API) Handshake(ctx context.Context, clientID schema.ClientID) (schema.TerminalID, error) {
	var resp schema.HandshakeResponse
	if err := a.t.Call(ctx, MethodHandshake, schema.HandshakeRequest{ClientID: clientID}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Connect binds to the terminal and returns the scroll-back lines.
func (a API) Connect(ctx context.Context, clientID schema.ClientID, terminalID schema.TerminalID) ([]string, error) {
	var resp schema.ConnectResponse
	err := a.t.Call(ctx, MethodConnect, schema.ConnectRequest{ClientID: clientID, TerminalID: terminalID}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Content, nil
}

// SendData delivers one encoded input frame.
func (a API) SendData(ctx context.Context, req schema.SendDataRequest) (schema.SendDataResponse, error) {
	var resp schema.SendDataResponse
	err := a.t.Call(ctx, MethodData, req, &resp)
	return resp, err
}

// SendConsumeConfirm acknowledges an applied inbound frame.
func (a API) SendConsumeConfirm(ctx context.Context, req schema.ConsumeConfirmRequest) error {
	return a.t.Call(ctx, MethodConsumeConfirm, req, nil)
}

// CloseConnection asks the remote to terminate the terminal.
func (a API) CloseConnection(ctx context.Context, req schema.CloseConnectionRequest) (bool, error) {
	var resp schema.CloseConnectionResponse
	if err := a.t.Call(ctx, MethodClose, req, &resp); err != nil {
		return false, err
	}
	return resp.Accepted, nil
}

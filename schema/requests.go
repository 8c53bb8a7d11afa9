package schema

// Terminal channel calls. Field names follow the remote wire contract.

// HandshakeRequest asks the remote to allocate or retrieve a terminal for a client.
type HandshakeRequest struct {
	ClientID ClientID `json:"clientId"`
}

// HandshakeResponse carries the allocated terminal id.
type HandshakeResponse struct {
	ID TerminalID `json:"id"`
}

// ConnectRequest binds the caller to an allocated terminal.
type ConnectRequest struct {
	ClientID   ClientID   `json:"clientId"`
	TerminalID TerminalID `json:"terminalId"`
}

// ConnectResponse seeds the terminal scroll-back.
type ConnectResponse struct {
	Content []string `json:"content"`
}

// SendDataRequest carries encoded user input.
type SendDataRequest struct {
	ClientID     ClientID   `json:"clientId"`
	TerminalID   TerminalID `json:"terminalId"`
	Sequence     uint64     `json:"sequence"`
	TerminalData string     `json:"terminalData"`
}

// SendDataResponse acknowledges an input frame.
type SendDataResponse struct {
	Accepted bool `json:"accepted,omitempty"`
}

// ConsumeConfirmRequest confirms that an inbound frame was applied.
type ConsumeConfirmRequest struct {
	ClientID   ClientID   `json:"clientId"`
	TerminalID TerminalID `json:"terminalId"`
	Sequence   uint64     `json:"sequence"`
}

// CloseConnectionRequest asks the remote to terminate a terminal.
type CloseConnectionRequest struct {
	ClientID   ClientID   `json:"clientId"`
	TerminalID TerminalID `json:"terminalId"`
}

// CloseConnectionResponse reports whether the remote accepted the close.
type CloseConnectionResponse struct {
	Accepted bool `json:"accepted"`
}

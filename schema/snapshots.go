package schema

// TabSnapshot is a read-only view of a tab for event consumers.
type TabSnapshot struct {
	ID        TabID
	ChannelID ChannelID
	Title     TabTitle
	Loading   bool
	Errored   bool
	Selected  bool
}

// SessionState is the lifecycle state of a terminal session.
type SessionState string

const (
	// SessionUninitialized is the state before any handshake was issued.
	SessionUninitialized SessionState = "uninitialized"
	// SessionHandshaking is the state while a terminal id is being negotiated.
	SessionHandshaking SessionState = "handshaking"
	// SessionConnected is the steady streaming state.
	SessionConnected SessionState = "connected"
	// SessionClosing is the state while an explicit close awaits confirmation.
	SessionClosing SessionState = "closing"
	// SessionClosed is the terminal state; the session is disposed.
	SessionClosed SessionState = "closed"
)

package schema

// TabEventType describes tab lifecycle or state changes.
type TabEventType string

const (
	// TabEventCreated indicates a tab was created.
	TabEventCreated TabEventType = "created"
	// TabEventDestroyed indicates a tab was removed.
	TabEventDestroyed TabEventType = "destroyed"
	// TabEventSelected indicates a tab received focus.
	TabEventSelected TabEventType = "selected"
	// TabEventUpdated indicates a tab was updated.
	TabEventUpdated TabEventType = "updated"
	// TabEventVetoed indicates a destroy request was refused by the hosted channel.
	TabEventVetoed TabEventType = "vetoed"
)

// TabEvent represents a change to a tab or tab list.
type TabEvent struct {
	ClientID    ClientID
	Type        TabEventType
	Tab         TabSnapshot
	SelectedTab TabID
}

// SessionEvent reports a terminal session state transition.
type SessionEvent struct {
	ClientID   ClientID
	TabID      TabID
	TerminalID TerminalID
	State      SessionState
	Err        error
}

package schema

// ClientID identifies a remote client (agent) managed by the dashboard.
type ClientID string

// TabID identifies a tab within a client's tab collection.
type TabID string

// ChannelID identifies the channel implementation hosted inside a tab.
type ChannelID string

// TerminalID identifies a remote terminal allocated by a handshake.
type TerminalID string

// TabTitle is the user-facing title of a tab.
type TabTitle string

// ChannelTerminal is the identifier of the built-in web terminal channel.
const ChannelTerminal ChannelID = "builtin:web-terminal"

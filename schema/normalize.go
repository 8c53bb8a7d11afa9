package schema

import "strings"

// NormalizeClientID trims a client identifier and rejects empty or
// whitespace-bearing values.
func NormalizeClientID(clientID ClientID) (ClientID, error) {
	trimmed := strings.TrimSpace(string(clientID))
	if trimmed == "" {
		return "", ErrInvalidClient
	}
	if strings.ContainsAny(trimmed, " \t\r\n") {
		return "", ErrInvalidClient
	}
	return ClientID(trimmed), nil
}

// NormalizeChannelID trims a channel identifier; empty selects the terminal channel.
func NormalizeChannelID(channelID ChannelID) ChannelID {
	trimmed := strings.TrimSpace(string(channelID))
	if trimmed == "" {
		return ChannelTerminal
	}
	return ChannelID(trimmed)
}

// TerminalDataEvent returns the inbound data event name for a terminal.
func TerminalDataEvent(id TerminalID) string {
	return "terminal:" + string(id) + ":data"
}

// TerminalCloseEvent returns the inbound close event name for a terminal.
func TerminalCloseEvent(id TerminalID) string {
	return "terminal:" + string(id) + ":close"
}

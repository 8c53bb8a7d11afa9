package logx

import (
	"context"

	"pkt.systems/channeldeck/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	clientKey contextKey = iota
	tabKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithClient annotates the logger with the client id if present.
func WithClient(ctx context.Context, clientID schema.ClientID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if clientID != "" {
		if current, ok := ctx.Value(clientKey).(schema.ClientID); ok && current == clientID {
			return log
		}
		log = log.With("client", clientID)
	}
	return log
}

// WithClientTab annotates the logger with client and tab identifiers.
func WithClientTab(ctx context.Context, clientID schema.ClientID, tabID schema.TabID) pslog.Logger {
	log := WithClient(ctx, clientID)
	if tabID != "" {
		if current, ok := ctx.Value(tabKey).(schema.TabID); ok && current == tabID {
			return log
		}
		log = log.With("tab", tabID)
	}
	return log
}

// WithTerminal annotates the logger with a terminal id when available.
func WithTerminal(log pslog.Logger, terminalID schema.TerminalID) pslog.Logger {
	if terminalID != "" {
		log = log.With("terminal", terminalID)
	}
	return log
}

// WithChannel annotates the logger with a channel id when available.
func WithChannel(log pslog.Logger, channelID schema.ChannelID) pslog.Logger {
	if channelID != "" {
		log = log.With("channel", channelID)
	}
	return log
}

// ContextWithClient stores the client marker on the context for log de-duplication.
func ContextWithClient(ctx context.Context, clientID schema.ClientID) context.Context {
	if ctx == nil || clientID == "" {
		return ctx
	}
	return context.WithValue(ctx, clientKey, clientID)
}

// ContextWithTab stores the tab marker on the context for log de-duplication.
func ContextWithTab(ctx context.Context, tabID schema.TabID) context.Context {
	if ctx == nil || tabID == "" {
		return ctx
	}
	return context.WithValue(ctx, tabKey, tabID)
}

// ContextWithClientTabLogger attaches the logger and client/tab markers to the context.
func ContextWithClientTabLogger(ctx context.Context, log pslog.Logger, clientID schema.ClientID, tabID schema.TabID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithTab(ContextWithClient(ctx, clientID), tabID)
}

// Detach returns a background context that keeps the logger and client/tab
// markers of src but none of its cancellation.
func Detach(src context.Context) context.Context {
	dst := context.Background()
	if src == nil {
		return dst
	}
	dst = pslog.ContextWithLogger(dst, pslog.Ctx(src))
	if client, ok := src.Value(clientKey).(schema.ClientID); ok && client != "" {
		dst = ContextWithClient(dst, client)
	}
	if tab, ok := src.Value(tabKey).(schema.TabID); ok && tab != "" {
		dst = ContextWithTab(dst, tab)
	}
	return dst
}

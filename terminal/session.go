// Package terminal implements the built-in terminal channel: a session that
// turns the remote terminal's event stream into an ordered, flow-controlled
// pseudo-terminal bound to one tab.
package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"pkt.systems/channeldeck/core"
	"pkt.systems/channeldeck/internal/logx"
	"pkt.systems/channeldeck/internal/seqcodec"
	"pkt.systems/channeldeck/schema"
	"pkt.systems/pslog"
)

// TabHandle is the part of a registry tab a session drives.
type TabHandle interface {
	SetLoading(loading bool)
	SetErrored(errored bool)
	Setup(lifecycle core.Lifecycle)
	Close() bool
}

// Clipboard reads the host clipboard.
type Clipboard interface {
	ReadText(ctx context.Context) (string, error)
}

// Deps are the collaborators of a session.
type Deps struct {
	Transport Transport
	Tab       TabHandle
	Surface   Surface
	Clipboard Clipboard
	Logger    pslog.Logger
	// Observer receives every state transition. It must not block.
	Observer func(schema.SessionEvent)
}

// Session is one terminal stream for a (client, terminal) pair.
type Session struct {
	cfg       schema.TerminalConfig
	clientID  schema.ClientID
	tabID     schema.TabID
	api       API
	transport Transport
	tab       TabHandle
	surface   Surface
	clipboard Clipboard
	observer  func(schema.SessionEvent)

	ctx    context.Context
	cancel context.CancelFunc

	sendMu sync.Mutex

	mu            sync.Mutex
	log           pslog.Logger
	state         schema.SessionState
	terminalID    schema.TerminalID
	outgoing      uint64
	pendingAcks   map[uint64]struct{}
	clipboardText string
	lastApplied   uint64
	applied       bool
	seeded        bool
	backlog       []json.RawMessage
	unsubData     func()
	unsubClose    func()
	joined        bool
	disposed      bool
}

// NewSession constructs an uninitialized session for the client's tab.
func NewSession(ctx context.Context, cfg schema.TerminalConfig, clientID schema.ClientID, tabID schema.TabID, deps Deps) (*Session, error) {
	clientID, err := schema.NormalizeClientID(clientID)
	if err != nil {
		return nil, err
	}
	if deps.Transport == nil {
		return nil, errors.New("terminal transport is required")
	}
	if deps.Tab == nil {
		return nil, errors.New("terminal tab is required")
	}
	if deps.Surface == nil {
		deps.Surface = NewWriterSurface(nil, cfg.ScrollbackLines)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logx.WithClientTab(ctx, clientID, tabID)
	}
	base, cancel := context.WithCancel(logx.ContextWithClientTabLogger(logx.Detach(ctx), logger, clientID, tabID))
	return &Session{
		cfg:         schema.NormalizeTerminalConfig(cfg),
		clientID:    clientID,
		tabID:       tabID,
		api:         NewAPI(deps.Transport),
		transport:   deps.Transport,
		tab:         deps.Tab,
		surface:     deps.Surface,
		clipboard:   deps.Clipboard,
		observer:    deps.Observer,
		ctx:         base,
		cancel:      cancel,
		log:         logger,
		state:       schema.SessionUninitialized,
		outgoing:    1,
		pendingAcks: make(map[uint64]struct{}),
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() schema.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TerminalID returns the id assigned by the handshake, if any.
func (s *Session) TerminalID() schema.TerminalID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminalID
}

// PendingAcks returns the number of input frames whose send has not returned.
func (s *Session) PendingAcks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingAcks)
}

// ClipboardText returns the last buffered clipboard snapshot.
func (s *Session) ClipboardText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clipboardText
}

// Disposed reports whether the session released its resources.
func (s *Session) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Start runs the handshake and connect phases. The tab shows loading until
// connect returns; a failed handshake leaves it loading, a failed connect marks
// it errored.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return schema.ErrSessionClosed
	}
	if s.state != schema.SessionUninitialized {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session already started: %s", state)
	}
	s.state = schema.SessionHandshaking
	s.mu.Unlock()
	s.notify(schema.SessionHandshaking, nil)
	s.tab.SetLoading(true)
	go s.RefreshClipboard(s.ctx)

	joinCtx, cancel := s.callContext(ctx)
	err := s.transport.Join(joinCtx, s.clientID)
	cancel()
	if err != nil {
		s.logger().Warn("terminal join failed", "err", err)
		return s.handshakeFailed(err)
	}
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		s.transport.Leave(s.clientID)
		return schema.ErrSessionClosed
	}
	s.joined = true
	s.mu.Unlock()

	s.logger().Debug("terminal handshake start")
	callCtx, cancel := s.callContext(ctx)
	terminalID, err := s.api.Handshake(callCtx, s.clientID)
	cancel()
	if s.Disposed() {
		return schema.ErrSessionClosed
	}
	if err != nil {
		s.logger().Warn("terminal handshake failed", "err", err)
		return s.handshakeFailed(err)
	}
	if terminalID == "" {
		s.logger().Warn("terminal handshake returned no id")
		return s.handshakeFailed(errors.New("empty terminal id"))
	}
	s.mu.Lock()
	s.terminalID = terminalID
	s.log = logx.WithTerminal(s.log, terminalID)
	s.mu.Unlock()
	s.logger().Info("terminal handshake complete")

	return s.connect(ctx, terminalID)
}

func (s *Session) handshakeFailed(err error) error {
	s.notify(schema.SessionHandshaking, err)
	return fmt.Errorf("%w: %v", schema.ErrHandshakeFailed, err)
}

func (s *Session) connect(ctx context.Context, terminalID schema.TerminalID) error {
	if !s.transport.Connected() {
		return s.connectFailed(schema.ErrTransportClosed)
	}
	unsubData := s.transport.Subscribe(schema.TerminalDataEvent(terminalID), s.onData)
	unsubClose := s.transport.Subscribe(schema.TerminalCloseEvent(terminalID), s.onClose)
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		unsubData()
		unsubClose()
		return schema.ErrSessionClosed
	}
	s.unsubData = unsubData
	s.unsubClose = unsubClose
	s.mu.Unlock()

	callCtx, cancel := s.callContext(ctx)
	lines, err := s.api.Connect(callCtx, s.clientID, terminalID)
	cancel()
	if s.Disposed() {
		return schema.ErrSessionClosed
	}
	if err != nil {
		s.logger().Warn("terminal connect failed", "err", err)
		return s.connectFailed(err)
	}
	if err := s.surface.Initialize(lines); err != nil {
		s.logger().Warn("terminal surface seed failed", "err", err)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return schema.ErrSessionClosed
	}
	s.state = schema.SessionConnected
	s.mu.Unlock()
	s.tab.SetLoading(false)
	s.tab.Setup(s.Hooks())
	if s.Disposed() {
		return schema.ErrSessionClosed
	}
	s.notify(schema.SessionConnected, nil)
	s.logger().Info("terminal connected", "lines", len(lines))

	s.flushBacklog()
	return nil
}

func (s *Session) connectFailed(err error) error {
	s.unsubscribe()
	s.tab.SetErrored(true)
	s.tab.SetLoading(false)
	s.notify(schema.SessionHandshaking, err)
	return fmt.Errorf("%w: %v", schema.ErrConnectFailed, err)
}

// flushBacklog applies frames that arrived before the scroll-back was seeded.
// Frames arriving meanwhile are appended and drained in the same loop.
func (s *Session) flushBacklog() {
	for {
		s.mu.Lock()
		if s.disposed {
			s.backlog = nil
			s.mu.Unlock()
			return
		}
		if len(s.backlog) == 0 {
			s.seeded = true
			s.mu.Unlock()
			return
		}
		pending := s.backlog
		s.backlog = nil
		s.mu.Unlock()
		s.logger().Debug("terminal backlog flush", "frames", len(pending))
		for _, raw := range pending {
			s.applyFrame(raw)
		}
	}
}

func (s *Session) onData(raw json.RawMessage) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	if !s.seeded {
		s.backlog = append(s.backlog, append(json.RawMessage(nil), raw...))
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.applyFrame(raw)
}

// applyFrame writes one inbound frame and confirms it. Malformed frames are
// dropped without confirmation.
func (s *Session) applyFrame(raw json.RawMessage) {
	frame, err := seqcodec.Decode(raw)
	if err != nil {
		s.logger().Warn("terminal frame dropped", "err", err)
		return
	}
	if frame.Empty {
		return
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	redelivered := s.cfg.SkipRedelivered && s.applied && frame.Sequence <= s.lastApplied
	if !redelivered {
		s.lastApplied = frame.Sequence
		s.applied = true
	}
	terminalID := s.terminalID
	s.mu.Unlock()

	if redelivered {
		s.logger().Debug("terminal frame redelivered", "sequence", frame.Sequence)
	} else if _, err := s.surface.Write(frame.Payload); err != nil {
		s.logger().Warn("terminal surface write failed", "sequence", frame.Sequence, "err", err)
	}

	callCtx, cancel := s.callContext(s.ctx)
	defer cancel()
	err = s.api.SendConsumeConfirm(callCtx, schema.ConsumeConfirmRequest{
		ClientID:   s.clientID,
		TerminalID: terminalID,
		Sequence:   frame.Sequence,
	})
	if err != nil && !s.Disposed() {
		s.logger().Debug("terminal confirm failed", "sequence", frame.Sequence, "err", err)
	}
}

func (s *Session) onClose(json.RawMessage) {
	s.mu.Lock()
	if s.disposed || s.state == schema.SessionClosed {
		s.mu.Unlock()
		return
	}
	s.state = schema.SessionClosed
	s.mu.Unlock()
	s.logger().Info("terminal closed by remote")
	s.Dispose()
	s.tab.Close()
}

// Input encodes p and sends it as the next outbound frame.
func (s *Session) Input(ctx context.Context, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return schema.ErrSessionClosed
	}
	if s.state != schema.SessionConnected {
		s.mu.Unlock()
		return schema.ErrNotConnected
	}
	seq := s.outgoing
	s.outgoing++
	s.pendingAcks[seq] = struct{}{}
	terminalID := s.terminalID
	s.mu.Unlock()

	callCtx, cancel := s.callContext(ctx)
	_, err := s.api.SendData(callCtx, schema.SendDataRequest{
		ClientID:     s.clientID,
		TerminalID:   terminalID,
		Sequence:     seq,
		TerminalData: seqcodec.Encode(p),
	})
	cancel()

	s.mu.Lock()
	delete(s.pendingAcks, seq)
	disposed := s.disposed
	s.mu.Unlock()
	if disposed {
		return schema.ErrSessionClosed
	}
	if err != nil {
		s.logger().Warn("terminal send failed", "sequence", seq, "err", err)
		return fmt.Errorf("send data %d: %w", seq, err)
	}
	s.logger().Trace("terminal input sent", "sequence", seq, "bytes", len(p))
	return nil
}

// Paste sends the buffered clipboard text as input.
func (s *Session) Paste(ctx context.Context) error {
	text := s.ClipboardText()
	if text == "" {
		return schema.ErrClipboardEmpty
	}
	return s.Input(ctx, []byte(text))
}

// RefreshClipboard snapshots the host clipboard. Failures keep the previous
// snapshot.
func (s *Session) RefreshClipboard(ctx context.Context) {
	if s.clipboard == nil {
		return
	}
	readCtx, cancel := s.callContext(ctx)
	text, err := s.clipboard.ReadText(readCtx)
	cancel()
	if err != nil {
		s.logger().Trace("terminal clipboard unavailable", "err", err)
		return
	}
	s.mu.Lock()
	s.clipboardText = text
	s.mu.Unlock()
}

// Close asks the remote to terminate the terminal. On acceptance the session
// is disposed and its tab closed; otherwise it stays connected.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return schema.ErrSessionClosed
	}
	if s.state != schema.SessionConnected {
		s.mu.Unlock()
		return schema.ErrNotConnected
	}
	s.state = schema.SessionClosing
	terminalID := s.terminalID
	s.mu.Unlock()
	s.notify(schema.SessionClosing, nil)

	callCtx, cancel := s.callContext(ctx)
	accepted, err := s.api.CloseConnection(callCtx, schema.CloseConnectionRequest{ClientID: s.clientID, TerminalID: terminalID})
	cancel()

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	if err != nil || !accepted {
		s.state = schema.SessionConnected
		s.mu.Unlock()
		s.notify(schema.SessionConnected, err)
		if err != nil {
			s.logger().Warn("terminal close failed", "err", err)
			return fmt.Errorf("%w: %v", schema.ErrCloseRejected, err)
		}
		s.logger().Info("terminal close rejected")
		return schema.ErrCloseRejected
	}
	s.state = schema.SessionClosed
	s.mu.Unlock()
	s.logger().Info("terminal closed")
	s.Dispose()
	s.tab.Close()
	return nil
}

// Reconnect tears the session down so a fresh one can be mounted on the same
// tab. Close errors are ignored.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return schema.ErrSessionClosed
	}
	terminalID := s.terminalID
	s.mu.Unlock()

	if terminalID != "" {
		callCtx, cancel := s.callContext(ctx)
		_, err := s.api.CloseConnection(callCtx, schema.CloseConnectionRequest{ClientID: s.clientID, TerminalID: terminalID})
		cancel()
		if err != nil {
			s.logger().Debug("terminal reconnect close ignored", "err", err)
		}
	}
	s.Dispose()
	s.mu.Lock()
	s.terminalID = ""
	s.mu.Unlock()
	s.logger().Info("terminal reconnect teardown")
	return nil
}

// Hooks returns the lifecycle hooks registered for the session's tab.
func (s *Session) Hooks() core.Lifecycle {
	return core.Lifecycle{
		OnFocus:         s.onFocus,
		OnBeforeDestroy: s.beforeDestroy,
	}
}

func (s *Session) onFocus() {
	go s.RefreshClipboard(s.ctx)
}

// beforeDestroy always allows destruction. A live session is disposed and the
// remote close is fired without waiting for it.
func (s *Session) beforeDestroy() bool {
	s.mu.Lock()
	if s.disposed || s.state == schema.SessionClosed {
		s.mu.Unlock()
		return true
	}
	terminalID := s.terminalID
	s.mu.Unlock()

	s.Dispose()
	if terminalID == "" {
		return true
	}
	ctx, cancel := context.WithTimeout(logx.Detach(s.ctx), s.cfg.CloseTimeout)
	go func() {
		defer cancel()
		if _, err := s.api.CloseConnection(ctx, schema.CloseConnectionRequest{ClientID: s.clientID, TerminalID: terminalID}); err != nil {
			s.logger().Debug("terminal destroy close failed", "err", err)
		}
	}()
	return true
}

// Dispose releases subscriptions, the surface and the room. It is idempotent.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.state = schema.SessionClosed
	unsubData, unsubClose := s.unsubData, s.unsubClose
	s.unsubData, s.unsubClose = nil, nil
	joined := s.joined
	s.joined = false
	s.backlog = nil
	s.mu.Unlock()

	s.cancel()
	if unsubData != nil {
		unsubData()
	}
	if unsubClose != nil {
		unsubClose()
	}
	if err := s.surface.Close(); err != nil {
		s.logger().Debug("terminal surface release failed", "err", err)
	}
	if joined {
		s.transport.Leave(s.clientID)
	}
	s.notify(schema.SessionClosed, nil)
	s.logger().Debug("terminal disposed")
}

func (s *Session) unsubscribe() {
	s.mu.Lock()
	unsubData, unsubClose := s.unsubData, s.unsubClose
	s.unsubData, s.unsubClose = nil, nil
	s.mu.Unlock()
	if unsubData != nil {
		unsubData()
	}
	if unsubClose != nil {
		unsubClose()
	}
}

// callContext bounds one remote call by the configured call timeout.
func (s *Session) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.CallTimeout)
}

func (s *Session) logger() pslog.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log
}

func (s *Session) notify(state schema.SessionState, err error) {
	if s.observer == nil {
		return
	}
	s.observer(schema.SessionEvent{
		ClientID:   s.clientID,
		TabID:      s.tabID,
		TerminalID: s.TerminalID(),
		State:      state,
		Err:        err,
	})
}

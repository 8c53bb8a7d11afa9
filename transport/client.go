// Package transport implements the multiplexed socket used by channels to talk
// to remote clients: named events in both directions, request/response calls,
// and per-client rooms.
//
// One reader goroutine routes call replies directly to their waiters and
// queues events; one dispatcher goroutine delivers queued events to handlers
// in arrival order. Handlers may therefore issue calls without deadlocking
// the reader.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/channeldeck/schema"
	"pkt.systems/pslog"
)

// Envelope types.
const (
	TypeEmit  = "emit"
	TypeCall  = "call"
	TypeReply = "reply"
	TypeEvent = "event"
)

// Room events emitted when the first session for a client joins and the last leaves.
const (
	EventJoin  = "join"
	EventLeave = "leave"
)

// Envelope is the JSON text message exchanged over the socket.
type Envelope struct {
	Type   string          `json:"type"`
	ID     uint64          `json:"id,omitempty"`
	Event  string          `json:"event,omitempty"`
	Method string          `json:"method,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Config configures a transport client.
type Config struct {
	URL              string
	Header           http.Header
	CallTimeout      time.Duration
	HandshakeTimeout time.Duration
}

// RemoteError is returned by Call when the remote replied with an error.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Method, e.Message)
}

type subscription struct {
	id uint64
	fn func(json.RawMessage)
}

// Client is a connected transport.
type Client struct {
	conn *websocket.Conn
	cfg  Config
	log  pslog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	nextID   uint64
	pending  map[uint64]chan Envelope
	handlers map[string][]subscription
	rooms    map[schema.ClientID]int
	queue    []Envelope
	err      error

	notify    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// Dial connects to the remote socket endpoint.
func Dial(ctx context.Context, cfg Config, logger pslog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("transport url is required")
	}
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	dialer := *websocket.DefaultDialer
	if cfg.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = cfg.HandshakeTimeout
	}
	log := logger.With("url", cfg.URL)
	log.Debug("transport dial start")
	conn, _, err := dialer.DialContext(ctx, cfg.URL, cfg.Header)
	if err != nil {
		log.Warn("transport dial failed", "err", err)
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	log.Info("transport connected")
	return NewClient(conn, cfg, log), nil
}

// NewClient wraps an established websocket connection and starts its loops.
func NewClient(conn *websocket.Conn, cfg Config, logger pslog.Logger) *Client {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	c := &Client{
		conn:     conn,
		cfg:      cfg,
		log:      logger,
		pending:  make(map[uint64]chan Envelope),
		handlers: make(map[string][]subscription),
		rooms:    make(map[schema.ClientID]int),
		notify:   make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
	go c.readLoop()
	go c.dispatchLoop()
	return c
}

// Connected reports whether the socket is still usable.
func (c *Client) Connected() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

// Done is closed when the socket is closed.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// Err returns the error that closed the socket, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Subscribe registers fn for the named event and returns a function removing
// exactly this registration. Calling the returned function more than once is safe.
func (c *Client) Subscribe(event string, fn func(json.RawMessage)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.handlers[event] = append(c.handlers[event], subscription{id: id, fn: fn})
	count := len(c.handlers[event])
	c.mu.Unlock()
	c.log.Trace("transport subscribe", "event", event, "handlers", count)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			subs := c.handlers[event]
			for i, sub := range subs {
				if sub.id == id {
					next := make([]subscription, 0, len(subs)-1)
					next = append(next, subs[:i]...)
					next = append(next, subs[i+1:]...)
					subs = next
					break
				}
			}
			if len(subs) == 0 {
				delete(c.handlers, event)
			} else {
				c.handlers[event] = subs
			}
			c.mu.Unlock()
			c.log.Trace("transport unsubscribe", "event", event)
		})
	}
}

// Emit sends a fire-and-forget event.
func (c *Client) Emit(ctx context.Context, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.write(ctx, Envelope{Type: TypeEmit, Event: event, Data: raw})
}

// Call sends a request and waits for its reply. resp may be nil.
func (c *Client) Call(ctx context.Context, method string, req any, resp any) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	reply := make(chan Envelope, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, Envelope{Type: TypeCall, ID: id, Method: method, Data: raw}); err != nil {
		return err
	}
	select {
	case env := <-reply:
		if env.Error != "" {
			return &RemoteError{Method: method, Message: env.Error}
		}
		if resp == nil || len(env.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(env.Data, resp); err != nil {
			return fmt.Errorf("decode %s reply: %w", method, err)
		}
		return nil
	case <-c.closed:
		return c.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join enters the client's room. Only the first join per client is sent to
// the remote; later joins just count references.
func (c *Client) Join(ctx context.Context, clientID schema.ClientID) error {
	c.mu.Lock()
	c.rooms[clientID]++
	first := c.rooms[clientID] == 1
	c.mu.Unlock()
	if !first {
		return nil
	}
	if err := c.Emit(ctx, EventJoin, clientID); err != nil {
		c.mu.Lock()
		c.rooms[clientID]--
		if c.rooms[clientID] <= 0 {
			delete(c.rooms, clientID)
		}
		c.mu.Unlock()
		return err
	}
	c.log.Debug("transport room joined", "client", clientID)
	return nil
}

// Leave releases one reference to the client's room and leaves it once the
// last reference is gone.
func (c *Client) Leave(clientID schema.ClientID) {
	c.mu.Lock()
	count, ok := c.rooms[clientID]
	if !ok {
		c.mu.Unlock()
		return
	}
	count--
	if count > 0 {
		c.rooms[clientID] = count
		c.mu.Unlock()
		return
	}
	delete(c.rooms, clientID)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Emit(ctx, EventLeave, clientID); err != nil {
		c.log.Debug("transport room leave failed", "client", clientID, "err", err)
		return
	}
	c.log.Debug("transport room left", "client", clientID)
}

// Rooms returns the current reference count for the client's room.
func (c *Client) Rooms(clientID schema.ClientID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[clientID]
}

// Close shuts the socket down. Pending calls fail with schema.ErrTransportClosed.
func (c *Client) Close() error {
	c.shutdown(nil)
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) write(ctx context.Context, env Envelope) error {
	if !c.Connected() {
		return c.closedErr()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	} else {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.shutdown(err)
		return fmt.Errorf("%w: %v", schema.ErrTransportClosed, err)
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.shutdown(nil)
			} else {
				c.shutdown(err)
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("transport message dropped", "err", err)
			continue
		}
		switch env.Type {
		case TypeReply:
			c.mu.Lock()
			waiter := c.pending[env.ID]
			c.mu.Unlock()
			if waiter == nil {
				c.log.Debug("transport reply without caller", "id", env.ID)
				continue
			}
			select {
			case waiter <- env:
			default:
				c.log.Debug("transport duplicate reply dropped", "id", env.ID)
			}
		case TypeEvent, TypeEmit:
			c.mu.Lock()
			c.queue = append(c.queue, env)
			c.mu.Unlock()
			select {
			case c.notify <- struct{}{}:
			default:
			}
		default:
			c.log.Debug("transport message ignored", "type", env.Type)
		}
	}
}

func (c *Client) dispatchLoop() {
	for {
		select {
		case <-c.notify:
		case <-c.closed:
			return
		}
		for {
			c.mu.Lock()
			if len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			env := c.queue[0]
			c.queue = c.queue[1:]
			subs := append([]subscription(nil), c.handlers[env.Event]...)
			c.mu.Unlock()

			if len(subs) == 0 {
				c.log.Trace("transport event without handler", "event", env.Event)
				continue
			}
			sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
			for _, sub := range subs {
				sub.fn(env.Data)
			}
		}
	}
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if err != nil {
			c.err = fmt.Errorf("%w: %v", schema.ErrTransportClosed, err)
		} else {
			c.err = schema.ErrTransportClosed
		}
		c.queue = nil
		c.mu.Unlock()
		close(c.closed)
		if err != nil {
			c.log.Warn("transport closed", "err", err)
		} else {
			c.log.Info("transport closed")
		}
	})
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return schema.ErrTransportClosed
}

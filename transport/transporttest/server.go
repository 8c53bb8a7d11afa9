// Package transporttest provides an in-process remote endpoint for tests that
// need a real socket.
package transporttest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/channeldeck/transport"
)

// CallFunc answers a call. A non-nil error is sent back as the reply error.
type CallFunc func(data json.RawMessage) (any, error)

// Server accepts one or more transport clients and answers their calls.
type Server struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu     sync.Mutex
	calls  map[string]CallFunc
	conns  []*serverConn
	emits  []transport.Envelope
	seen   []transport.Envelope
	notify chan struct{}
	copies int
}

type serverConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewServer starts a server. Close it when done.
func NewServer() *Server {
	s := &Server{
		calls:  make(map[string]CallFunc),
		notify: make(chan struct{}, 1),
		copies: 1,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// URL returns the ws:// address of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// RepeatReplies makes the server send every reply n times.
func (s *Server) RepeatReplies(n int) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	s.copies = n
	s.mu.Unlock()
}

// Handle registers the answer for method.
func (s *Server) Handle(method string, fn CallFunc) {
	s.mu.Lock()
	s.calls[method] = fn
	s.mu.Unlock()
}

// Push sends an event to every connected client.
func (s *Server) Push(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.PushRaw(event, raw)
}

// PushRaw sends an event with a pre-encoded payload.
func (s *Server) PushRaw(event string, raw json.RawMessage) error {
	s.mu.Lock()
	conns := append([]*serverConn(nil), s.conns...)
	s.mu.Unlock()
	if len(conns) == 0 {
		return errors.New("no connected clients")
	}
	for _, c := range conns {
		if err := c.write(transport.Envelope{Type: transport.TypeEvent, Event: event, Data: raw}); err != nil {
			return err
		}
	}
	return nil
}

// Emits returns the fire-and-forget events received so far.
func (s *Server) Emits() []transport.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.Envelope(nil), s.emits...)
}

// Seen returns every call and emit received so far, in arrival order.
func (s *Server) Seen() []transport.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.Envelope(nil), s.seen...)
}

// WaitFor polls until cond holds for the received messages or the timeout elapses.
func (s *Server) WaitFor(timeout time.Duration, cond func(seen []transport.Envelope) bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if cond(s.Seen()) {
			return true
		}
		select {
		case <-s.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline.C:
			return cond(s.Seen())
		}
	}
}

// DropConnections closes every client socket without a close handshake.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.conn.Close()
	}
}

// Close stops the server.
func (s *Server) Close() {
	s.DropConnections()
	s.srv.Close()
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sc := &serverConn{conn: conn}
	s.mu.Lock()
	s.conns = append(s.conns, sc)
	s.mu.Unlock()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env transport.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		s.mu.Lock()
		s.seen = append(s.seen, env)
		if env.Type == transport.TypeEmit {
			s.emits = append(s.emits, env)
		}
		fn := s.calls[env.Method]
		copies := s.copies
		s.mu.Unlock()
		select {
		case s.notify <- struct{}{}:
		default:
		}
		if env.Type != transport.TypeCall {
			continue
		}
		go s.answer(sc, env, fn, copies)
	}
}

func (s *Server) answer(sc *serverConn, env transport.Envelope, fn CallFunc, copies int) {
	reply := transport.Envelope{Type: transport.TypeReply, ID: env.ID}
	if fn == nil {
		reply.Error = "unknown method " + env.Method
		_ = sc.write(reply)
		return
	}
	result, err := fn(env.Data)
	if err != nil {
		reply.Error = err.Error()
	} else if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Data = raw
		}
	}
	for i := 0; i < copies; i++ {
		_ = sc.write(reply)
	}
}

func (c *serverConn) write(env transport.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

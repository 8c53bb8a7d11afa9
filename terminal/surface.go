package terminal

import (
	"io"
	"strings"
	"sync"
)

// Surface is where a session renders terminal output.
type Surface interface {
	// Initialize seeds the surface with the lines returned by connect.
	Initialize(lines []string) error
	// Write applies decoded output bytes.
	Write(p []byte) (int, error)
	// Close releases the surface. Writes after Close are discarded.
	Close() error
}

// WriterSurface forwards output to an io.Writer and retains a bounded
// scroll-back.
type WriterSurface struct {
	mu       sync.Mutex
	out      io.Writer
	buf      *scrollback
	released bool
}

// NewWriterSurface returns a surface writing to out. A nil out only records
// scroll-back.
func NewWriterSurface(out io.Writer, maxLines int) *WriterSurface {
	return &WriterSurface{out: out, buf: newScrollback(maxLines)}
}

// Initialize implements Surface.
func (s *WriterSurface) Initialize(lines []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.buf.Seed(lines)
	if s.out == nil || len(lines) == 0 {
		return nil
	}
	_, err := io.WriteString(s.out, strings.Join(lines, "\r\n"))
	return err
}

// Write implements Surface.
func (s *WriterSurface) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return len(p), nil
	}
	s.buf.Append(p)
	if s.out == nil {
		return len(p), nil
	}
	return s.out.Write(p)
}

// Close implements Surface. The underlying writer is left open.
func (s *WriterSurface) Close() error {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
	return nil
}

// Released reports whether Close was called.
func (s *WriterSurface) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Scrollback returns up to limit trailing lines of output.
func (s *WriterSurface) Scrollback(limit int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Snapshot(limit)
}

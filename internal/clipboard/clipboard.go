// Package clipboard reads the host clipboard.
package clipboard

import (
	"context"
	"errors"
	"time"

	sysclip "github.com/atotto/clipboard"

	"pkt.systems/channeldeck/schema"
)

// ErrUnavailable indicates the host has no usable clipboard.
var ErrUnavailable = errors.New("clipboard unavailable")

// Reader reads text from the system clipboard.
type Reader struct {
	timeout     time.Duration
	unsupported func() bool
	read        func() (string, error)
}

// New returns a reader backed by the system clipboard.
func New() *Reader {
	return &Reader{
		timeout:     2 * time.Second,
		unsupported: func() bool { return sysclip.Unsupported },
		read:        sysclip.ReadAll,
	}
}

type result struct {
	text string
	err  error
}

// ReadText returns the clipboard text. An empty clipboard yields schema.ErrClipboardEmpty.
func (r *Reader) ReadText(ctx context.Context) (string, error) {
	if r.unsupported() {
		return "", ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	done := make(chan result, 1)
	go func() {
		text, err := r.read()
		done <- result{text: text, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", res.err
		}
		if res.text == "" {
			return "", schema.ErrClipboardEmpty
		}
		return res.text, nil
	}
}

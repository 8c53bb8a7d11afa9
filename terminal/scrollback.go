package terminal

import (
	"bytes"
	"strings"

	"pkt.systems/channeldeck/schema"
)

// scrollback stores terminal output as lines. Output that does not end in a
// newline is kept as a pending line and completed by later writes.
type scrollback struct {
	lines    []string
	partial  []byte
	maxLines int
}

func newScrollback(maxLines int) *scrollback {
	if maxLines <= 0 {
		maxLines = schema.DefaultScrollbackLines
	}
	return &scrollback{maxLines: maxLines}
}

// Seed replaces the content with lines supplied by the remote on connect.
func (b *scrollback) Seed(lines []string) {
	b.lines = b.lines[:0]
	b.partial = nil
	for _, line := range lines {
		b.lines = append(b.lines, strings.TrimRight(line, "\r\n"))
	}
	b.trim()
}

// Append adds raw output.
func (b *scrollback) Append(p []byte) {
	data := append(b.partial, p...)
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		b.lines = append(b.lines, strings.TrimRight(string(data[:idx]), "\r"))
		data = data[idx+1:]
	}
	b.partial = append([]byte(nil), data...)
	b.trim()
}

// Snapshot returns up to limit trailing lines, including a pending line.
// limit <= 0 returns everything retained.
func (b *scrollback) Snapshot(limit int) []string {
	all := b.lines
	if len(b.partial) > 0 {
		all = append(append([]string(nil), b.lines...), string(b.partial))
	}
	total := len(all)
	if limit <= 0 || limit > total {
		limit = total
	}
	out := make([]string, limit)
	copy(out, all[total-limit:])
	return out
}

// Len reports the number of completed lines.
func (b *scrollback) Len() int {
	return len(b.lines)
}

func (b *scrollback) trim() {
	if len(b.lines) > b.maxLines {
		trim := len(b.lines) - b.maxLines
		b.lines = append([]string(nil), b.lines[trim:]...)
	}
}

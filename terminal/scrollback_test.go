package terminal

import (
	"bytes"
	"fmt"
	"testing"
)

func TestScrollbackJoinsPartialLines(t *testing.T) {
	b := newScrollback(10)
	b.Append([]byte("hel"))
	b.Append([]byte("lo\r\nwor"))
	if b.Len() != 1 {
		t.Fatalf("expected one completed line, got %d", b.Len())
	}
	got := b.Snapshot(0)
	if fmt.Sprint(got) != "[hello wor]" {
		t.Fatalf("unexpected snapshot %v", got)
	}
}

func TestScrollbackRespectsMaxLines(t *testing.T) {
	b := newScrollback(3)
	b.Append([]byte("one\ntwo\nthree\nfour\nfive\n"))
	got := b.Snapshot(10)
	if len(got) != 3 || got[0] != "three" || got[2] != "five" {
		t.Fatalf("unexpected lines: %v", got)
	}
	if tail := b.Snapshot(1); len(tail) != 1 || tail[0] != "five" {
		t.Fatalf("unexpected tail: %v", tail)
	}
}

func TestScrollbackSeedReplacesContent(t *testing.T) {
	b := newScrollback(10)
	b.Append([]byte("stale\npartial"))
	b.Seed([]string{"a\r\n", "b"})
	if got := b.Snapshot(0); fmt.Sprint(got) != "[a b]" {
		t.Fatalf("unexpected seeded lines %v", got)
	}
}

func TestWriterSurfaceForwardsUntilClosed(t *testing.T) {
	var out bytes.Buffer
	s := NewWriterSurface(&out, 10)
	if err := s.Initialize([]string{"$ ls", "file"}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	_, _ = s.Write([]byte("\r\n$ "))
	_ = s.Close()
	_, _ = s.Write([]byte("ignored"))
	if out.String() != "$ ls\r\nfile\r\n$ " {
		t.Fatalf("unexpected output %q", out.String())
	}
	if !s.Released() {
		t.Fatalf("expected released surface")
	}
}

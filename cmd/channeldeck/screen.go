package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"pkt.systems/channeldeck/channel"
	"pkt.systems/channeldeck/schema"
	"pkt.systems/channeldeck/terminal"
)

const clearScreen = "\x1b[2J\x1b[H"

// screen multiplexes tab surfaces onto one output. Only the selected tab
// writes through; switching tabs repaints from the tab's scroll-back.
type screen struct {
	mu       sync.Mutex
	out      io.Writer
	lines    int
	active   schema.TabID
	surfaces map[schema.TabID]*terminal.WriterSurface
}

func newScreen(out io.Writer, lines int) *screen {
	return &screen{out: out, lines: lines, surfaces: make(map[schema.TabID]*terminal.WriterSurface)}
}

// NewSurface is the terminal channel's surface factory.
func (s *screen) NewSurface(tab channel.Tab) terminal.Surface {
	surface := terminal.NewWriterSurface(&tabWriter{screen: s, tab: tab.ID()}, s.lines)
	s.mu.Lock()
	s.surfaces[tab.ID()] = surface
	s.mu.Unlock()
	return surface
}

// Show makes tabID the visible tab and repaints it.
func (s *screen) Show(tabID schema.TabID) {
	s.mu.Lock()
	surface := s.surfaces[tabID]
	s.mu.Unlock()
	var lines []string
	if surface != nil {
		lines = surface.Scrollback(0)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = tabID
	_, _ = io.WriteString(s.out, clearScreen+strings.Join(lines, "\r\n"))
}

// Active returns the visible tab.
func (s *screen) Active() schema.TabID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *screen) forget(tabID schema.TabID) {
	s.mu.Lock()
	delete(s.surfaces, tabID)
	if s.active == tabID {
		s.active = ""
	}
	s.mu.Unlock()
}

func (s *screen) status(tabID schema.TabID, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != tabID {
		return
	}
	_, _ = fmt.Fprintf(s.out, "\r\n[channeldeck] "+format+"\r\n", args...)
}

// OnTabEvent follows the registry selection.
func (s *screen) OnTabEvent(event schema.TabEvent) {
	switch event.Type {
	case schema.TabEventSelected:
		s.Show(event.SelectedTab)
	case schema.TabEventDestroyed:
		s.forget(event.Tab.ID)
		if event.SelectedTab == "" {
			s.mu.Lock()
			_, _ = io.WriteString(s.out, clearScreen)
			s.mu.Unlock()
		}
	case schema.TabEventVetoed:
		s.status(event.Tab.ID, "tab close refused")
	}
}

// OnSessionEvent reports failures of the visible session.
func (s *screen) OnSessionEvent(event schema.SessionEvent) {
	if event.Err == nil {
		return
	}
	s.status(event.TabID, "terminal %s failed: %v (Ctrl-] r reconnects)", event.State, event.Err)
}

type tabWriter struct {
	screen *screen
	tab    schema.TabID
}

func (w *tabWriter) Write(p []byte) (int, error) {
	w.screen.mu.Lock()
	defer w.screen.mu.Unlock()
	if w.screen.active != w.tab {
		return len(p), nil
	}
	return w.screen.out.Write(p)
}

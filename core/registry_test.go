package core

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"pkt.systems/channeldeck/schema"
)

func TestCreateTabPreservesInsertionOrder(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()
	var ids []schema.TabID
	for i := 0; i < 3; i++ {
		id, err := reg.CreateTab(ctx, "agent-1", TabData{Title: schema.TabTitle(fmt.Sprintf("tab %d", i))})
		if err != nil {
			t.Fatalf("create tab: %v", err)
		}
		ids = append(ids, id)
	}
	tabs := reg.Tabs("agent-1")
	if len(tabs) != 3 {
		t.Fatalf("expected 3 tabs, got %d", len(tabs))
	}
	for i, tab := range tabs {
		if tab.ID != ids[i] {
			t.Fatalf("expected tab %d to be %q, got %q", i, ids[i], tab.ID)
		}
		if tab.ChannelID != schema.ChannelTerminal {
			t.Fatalf("expected default channel, got %q", tab.ChannelID)
		}
	}
}

func TestCreateTabRejectsEmptyClient(t *testing.T) {
	reg := newTestRegistry(t, nil)
	if _, err := reg.CreateTab(context.Background(), " ", TabData{}); err != schema.ErrInvalidClient {
		t.Fatalf("expected invalid client, got %v", err)
	}
}

func TestCreateTabTruncatesTitle(t *testing.T) {
	reg, err := NewRegistry(schema.RegistryConfig{TitleMax: 6, TitleSuffix: "$"}, RegistryDeps{})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	id, err := reg.CreateTab(context.Background(), "agent-1", TabData{Title: "terminal-one"})
	if err != nil {
		t.Fatalf("create tab: %v", err)
	}
	tab, ok := reg.Tab("agent-1", id)
	if !ok {
		t.Fatalf("expected tab")
	}
	if tab.Title != "termi$" {
		t.Fatalf("expected truncated title, got %q", tab.Title)
	}
}

func TestUpdateTabPatchesOnlyMutableFields(t *testing.T) {
	sink := &recordingSink{}
	reg := newTestRegistry(t, sink)
	ctx := context.Background()
	id, _ := reg.CreateTab(ctx, "agent-1", TabData{ChannelID: "custom", Title: "one", Loading: true})

	reg.UpdateTab(ctx, "agent-1", id, TabUpdate{Loading: Bool(false), Errored: Bool(true), Content: ContentRef("surface")})
	tab, _ := reg.Tab("agent-1", id)
	if tab.Loading || !tab.Errored {
		t.Fatalf("unexpected flags: %+v", tab)
	}
	if tab.Content != "surface" {
		t.Fatalf("expected content reference, got %v", tab.Content)
	}
	if tab.ChannelID != "custom" || tab.Title != "one" {
		t.Fatalf("immutable fields changed: %+v", tab)
	}
	if got := sink.types(); got[len(got)-1] != schema.TabEventUpdated {
		t.Fatalf("expected updated event, got %v", got)
	}
}

func TestUpdateTabMissIsNoop(t *testing.T) {
	sink := &recordingSink{}
	reg := newTestRegistry(t, sink)
	before := reg.Snapshot()
	reg.UpdateTab(context.Background(), "nobody", "missing", TabUpdate{Loading: Bool(true)})
	if len(reg.Snapshot().Tabs) != len(before.Tabs) {
		t.Fatalf("expected no change")
	}
	if len(sink.types()) != 0 {
		t.Fatalf("expected no events, got %v", sink.types())
	}
}

func TestDestroyTabHonorsVeto(t *testing.T) {
	sink := &recordingSink{}
	reg := newTestRegistry(t, sink)
	ctx := context.Background()
	calls := 0
	id, _ := reg.CreateTab(ctx, "agent-1", TabData{Lifecycle: Lifecycle{OnBeforeDestroy: func() bool {
		calls++
		return false
	}}})

	if reg.DestroyTab(ctx, "agent-1", id) {
		t.Fatalf("expected veto")
	}
	if calls != 1 {
		t.Fatalf("expected hook once, got %d", calls)
	}
	if _, ok := reg.Tab("agent-1", id); !ok {
		t.Fatalf("expected vetoed tab to remain")
	}
	if got := sink.types(); got[len(got)-1] != schema.TabEventVetoed {
		t.Fatalf("expected vetoed event, got %v", got)
	}
}

func TestDestroyTabWithoutHookIsAllowed(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()
	id, _ := reg.CreateTab(ctx, "agent-1", TabData{})
	if !reg.DestroyTab(ctx, "agent-1", id) {
		t.Fatalf("expected destroy")
	}
	if len(reg.Tabs("agent-1")) != 0 {
		t.Fatalf("expected no tabs")
	}
	if reg.DestroyTab(ctx, "agent-1", id) {
		t.Fatalf("expected second destroy to be a no-op")
	}
}

func TestSetupReplacesHooks(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()
	id, _ := reg.CreateTab(ctx, "agent-1", TabData{})
	reg.Setup(ctx, "agent-1", id, Lifecycle{OnBeforeDestroy: func() bool { return false }})
	allowed := false
	reg.Setup(ctx, "agent-1", id, Lifecycle{OnBeforeDestroy: func() bool {
		allowed = true
		return true
	}})
	if !reg.DestroyTab(ctx, "agent-1", id) || !allowed {
		t.Fatalf("expected the latest hook to allow destruction")
	}
}

func TestDestroySelectedTabSelectsPreviousSibling(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()
	a, _ := reg.CreateTab(ctx, "agent-1", TabData{})
	b, _ := reg.CreateTab(ctx, "agent-1", TabData{})
	c, _ := reg.CreateTab(ctx, "agent-1", TabData{})

	reg.SetSelectedTab(ctx, "agent-1", b)
	reg.DestroyTab(ctx, "agent-1", b)
	if got, _ := reg.Selected("agent-1"); got != a {
		t.Fatalf("expected previous sibling %q, got %q", a, got)
	}

	reg.DestroyTab(ctx, "agent-1", a)
	if got, _ := reg.Selected("agent-1"); got != c {
		t.Fatalf("expected next sibling %q, got %q", c, got)
	}

	reg.DestroyTab(ctx, "agent-1", c)
	if got, ok := reg.Selected("agent-1"); ok {
		t.Fatalf("expected no selection, got %q", got)
	}
}

func TestDestroyUnselectedTabKeepsSelection(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()
	a, _ := reg.CreateTab(ctx, "agent-1", TabData{})
	b, _ := reg.CreateTab(ctx, "agent-1", TabData{})
	reg.SetSelectedTab(ctx, "agent-1", b)
	reg.DestroyTab(ctx, "agent-1", a)
	if got, _ := reg.Selected("agent-1"); got != b {
		t.Fatalf("expected selection %q, got %q", b, got)
	}
}

func TestSetSelectedTabFiresFocusAndBlur(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()
	var trail []string
	hooks := func(name string) Lifecycle {
		return Lifecycle{
			OnFocus: func() { trail = append(trail, "focus:"+name) },
			OnBlur:  func() { trail = append(trail, "blur:"+name) },
		}
	}
	a, _ := reg.CreateTab(ctx, "agent-1", TabData{Lifecycle: hooks("a")})
	b, _ := reg.CreateTab(ctx, "agent-1", TabData{Lifecycle: hooks("b")})

	reg.SetSelectedTab(ctx, "agent-1", a)
	reg.SetSelectedTab(ctx, "agent-1", b)
	reg.SetSelectedTab(ctx, "agent-1", b)

	want := []string{"focus:a", "blur:a", "focus:b"}
	if fmt.Sprint(trail) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, trail)
	}
}

func TestSetSelectedTabDoesNotValidate(t *testing.T) {
	reg := newTestRegistry(t, nil)
	reg.SetSelectedTab(context.Background(), "agent-1", "ghost")
	if got, ok := reg.Selected("agent-1"); !ok || got != "ghost" {
		t.Fatalf("expected unvalidated selection, got %q", got)
	}
}

func TestSnapshotIsNotMutatedByLaterWrites(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()
	id, _ := reg.CreateTab(ctx, "agent-1", TabData{Loading: true})
	before := reg.Snapshot()

	reg.UpdateTab(ctx, "agent-1", id, TabUpdate{Loading: Bool(false)})
	_, _ = reg.CreateTab(ctx, "agent-1", TabData{})
	reg.DestroyTab(ctx, "agent-1", id)

	tabs := before.Tabs["agent-1"]
	if len(tabs) != 1 || tabs[0].ID != id || !tabs[0].Loading {
		t.Fatalf("prior snapshot changed: %+v", tabs)
	}
}

func TestConcurrentCreateTabs(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = reg.CreateTab(ctx, "agent-1", TabData{})
		}()
	}
	wg.Wait()
	if got := len(reg.Tabs("agent-1")); got != 50 {
		t.Fatalf("expected 50 tabs, got %d", got)
	}
}

func TestCreateDestroySequencesProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// Each op is either a create (negative) or a destroy of the n-th live tab.
	properties.Property("tabs are the created-and-not-destroyed ones in insertion order", prop.ForAll(
		func(ops []int) bool {
			reg, err := NewRegistry(schema.RegistryConfig{}, RegistryDeps{})
			if err != nil {
				return false
			}
			ctx := context.Background()
			var model []schema.TabID
			for _, op := range ops {
				if op < 0 || len(model) == 0 {
					id, err := reg.CreateTab(ctx, "agent-1", TabData{})
					if err != nil {
						return false
					}
					model = append(model, id)
					continue
				}
				idx := op % len(model)
				if !reg.DestroyTab(ctx, "agent-1", model[idx]) {
					return false
				}
				model = append(model[:idx], model[idx+1:]...)
			}
			tabs := reg.Tabs("agent-1")
			if len(tabs) != len(model) {
				return false
			}
			for i := range tabs {
				if tabs[i].ID != model[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(-5, 5)),
	))

	properties.TestingRun(t)
}

func newTestRegistry(t *testing.T, sink EventSink) *Registry {
	t.Helper()
	reg, err := NewRegistry(schema.RegistryConfig{}, RegistryDeps{EventSink: sink})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg
}

type recordingSink struct {
	mu     sync.Mutex
	events []schema.TabEvent
}

func (s *recordingSink) OnTabEvent(event schema.TabEvent) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *recordingSink) types() []schema.TabEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.TabEventType, 0, len(s.events))
	for _, event := range s.events {
		out = append(out, event.Type)
	}
	return out
}

func TestRegistryNormalizesClientOnEveryOperation(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()
	first, err := reg.CreateTab(ctx, " agent-1 ", TabData{Title: "one"})
	if err != nil {
		t.Fatalf("create tab: %v", err)
	}
	second, _ := reg.CreateTab(ctx, "agent-1", TabData{Title: "two"})

	if got := reg.Tabs(" agent-1"); len(got) != 2 {
		t.Fatalf("expected 2 tabs through padded id, got %d", len(got))
	}
	reg.UpdateTab(ctx, "agent-1 ", first, TabUpdate{Errored: Bool(true)})
	if tab, ok := reg.Tab(" agent-1 ", first); !ok || !tab.Errored {
		t.Fatalf("expected padded update to land, got %+v", tab)
	}
	var focused bool
	reg.Setup(ctx, "\tagent-1", first, Lifecycle{OnFocus: func() { focused = true }})
	reg.SetSelectedTab(ctx, " agent-1", first)
	if !focused {
		t.Fatalf("expected focus hook installed through padded id")
	}
	if selected, ok := reg.Selected("agent-1 "); !ok || selected != first {
		t.Fatalf("expected %q selected, got %q", first, selected)
	}
	if !reg.DestroyTab(ctx, " agent-1 ", first) {
		t.Fatalf("expected padded destroy to remove the tab")
	}
	tabs := reg.Tabs("agent-1")
	if len(tabs) != 1 || tabs[0].ID != second {
		t.Fatalf("unexpected tabs after destroy: %+v", tabs)
	}
	if _, ok := reg.Snapshot().Tabs[" agent-1 "]; ok {
		t.Fatalf("expected no entry under the padded id")
	}
}

func TestSetTitleTruncatesAndEmitsUpdate(t *testing.T) {
	sink := &recordingSink{}
	reg, err := NewRegistry(schema.RegistryConfig{TitleMax: 6, TitleSuffix: "$"}, RegistryDeps{EventSink: sink})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	ctx := context.Background()
	id, _ := reg.CreateTab(ctx, "agent-1", TabData{Title: "one"})

	reg.SetTitle(ctx, "agent-1", id, "  renamed-terminal ")
	tab, _ := reg.Tab("agent-1", id)
	if tab.Title != "renam$" {
		t.Fatalf("expected truncated title, got %q", tab.Title)
	}
	if got := sink.types(); got[len(got)-1] != schema.TabEventUpdated {
		t.Fatalf("expected updated event, got %v", got)
	}

	before := len(sink.types())
	reg.SetTitle(ctx, "agent-1", "missing", "x")
	if len(sink.types()) != before {
		t.Fatalf("expected rename miss to emit nothing")
	}
}

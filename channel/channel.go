// Package channel defines how pluggable channels are mounted into tabs.
package channel

import (
	"context"
	"fmt"
	"sort"

	"pkt.systems/channeldeck/core"
	"pkt.systems/channeldeck/schema"
)

// Tab is the handle a mounted channel uses to drive its tab.
type Tab interface {
	ClientID() schema.ClientID
	ID() schema.TabID
	SetLoading(loading bool)
	SetErrored(errored bool)
	SetTitle(title schema.TabTitle)
	SetContent(content any)
	Setup(lifecycle core.Lifecycle)
	// Close destroys the tab through the registry and reports whether it was removed.
	Close() bool
}

// Instance is a channel mounted into one tab.
type Instance interface {
	// Reconnect replaces the instance's remote session in place.
	Reconnect(ctx context.Context) error
	// Dispose releases everything the instance holds. It is idempotent.
	Dispose()
}

// Channel mounts instances into tabs.
type Channel interface {
	ID() schema.ChannelID
	Mount(ctx context.Context, tab Tab) (Instance, error)
}

// Catalog is the fixed set of channels a host offers.
type Catalog struct {
	channels map[schema.ChannelID]Channel
}

// NewCatalog builds a catalog. Duplicate ids are rejected.
func NewCatalog(channels ...Channel) (*Catalog, error) {
	c := &Catalog{channels: make(map[schema.ChannelID]Channel, len(channels))}
	for _, ch := range channels {
		if ch == nil {
			continue
		}
		id := schema.NormalizeChannelID(ch.ID())
		if _, exists := c.channels[id]; exists {
			return nil, fmt.Errorf("duplicate channel %q", id)
		}
		c.channels[id] = ch
	}
	return c, nil
}

// Lookup returns the channel registered for id.
func (c *Catalog) Lookup(id schema.ChannelID) (Channel, error) {
	ch, ok := c.channels[schema.NormalizeChannelID(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", schema.ErrUnknownChannel, id)
	}
	return ch, nil
}

// IDs returns the registered channel ids in sorted order.
func (c *Catalog) IDs() []schema.ChannelID {
	ids := make([]schema.ChannelID, 0, len(c.channels))
	for id := range c.channels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

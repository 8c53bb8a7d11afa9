package core

import (
	"pkt.systems/channeldeck/schema"
	"pkt.systems/pslog"
)

// RegistryDeps captures optional dependencies for the registry.
type RegistryDeps struct {
	EventSink EventSink
	Logger    pslog.Logger
	// NewID overrides tab id generation; tests use it for stable ids.
	NewID func() schema.TabID
}

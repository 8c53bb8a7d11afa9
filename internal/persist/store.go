package persist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"pkt.systems/channeldeck/schema"
	"pkt.systems/pslog"
)

// LayoutTab captures one tab of a client layout.
type LayoutTab struct {
	ChannelID schema.ChannelID `yaml:"channel"`
	Title     schema.TabTitle  `yaml:"title,omitempty"`
}

// ClientLayout captures a client's tabs in display order. Sessions are not
// persisted; restoring a layout mounts fresh ones.
type ClientLayout struct {
	Tabs []LayoutTab `yaml:"tabs"`
	// Selected is the index of the focused tab, or -1.
	Selected int `yaml:"selected"`
}

// Store persists client layouts to disk.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Load reads a client layout from disk.
func (s *Store) Load(clientID schema.ClientID) (ClientLayout, bool, error) {
	path := s.pathForClient(clientID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("layout load miss", "client", clientID)
			}
			return ClientLayout{}, false, nil
		}
		if s.log != nil {
			s.log.Warn("layout load failed", "client", clientID, "err", err)
		}
		return ClientLayout{}, false, err
	}
	layout := ClientLayout{Selected: -1}
	if err := yaml.Unmarshal(data, &layout); err != nil {
		if s.log != nil {
			s.log.Warn("layout load failed", "client", clientID, "err", err)
		}
		return ClientLayout{}, false, err
	}
	if layout.Selected >= len(layout.Tabs) {
		layout.Selected = -1
	}
	if s.log != nil {
		s.log.Debug("layout load ok", "client", clientID, "tabs", len(layout.Tabs))
	}
	return layout, true, nil
}

// Save writes a client layout to disk atomically.
func (s *Store) Save(clientID schema.ClientID, layout ClientLayout) error {
	path := s.pathForClient(clientID)
	if err := s.save(path, layout); err != nil {
		if s.log != nil {
			s.log.Warn("layout save failed", "client", clientID, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Trace("layout save ok", "client", clientID, "tabs", len(layout.Tabs))
	}
	return nil
}

// Delete removes a client layout. Missing layouts are ignored.
func (s *Store) Delete(clientID schema.ClientID) error {
	err := os.Remove(s.pathForClient(clientID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) save(path string, layout ClientLayout) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(layout)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "layout-*.yaml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Store) pathForClient(clientID schema.ClientID) string {
	name := sanitize(string(clientID))
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(s.dir, name+".yaml")
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}

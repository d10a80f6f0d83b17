// Package clientcfg loads the YAML configuration shared by the panel
// clients (paramctl and the MCP server).
package clientcfg

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urmzd/homai-panel/pkg/i18n"
	"github.com/urmzd/homai-panel/pkg/rpc"
	"gopkg.in/yaml.v3"
)

// Transports
const (
	TransportHTTP      = "http"
	TransportWebSocket = "ws"
)

var ErrInvalid = errors.New("invalid client configuration")

// Config is the client configuration file.
type Config struct {
	Server      string        `yaml:"server"`
	Transport   string        `yaml:"transport"`
	EntryID     string        `yaml:"entry_id"`
	InterfaceID string        `yaml:"interface_id,omitempty"`
	Language    string        `yaml:"language"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Server:    "http://localhost:8080",
		Transport: TransportWebSocket,
		EntryID:   "default",
		Language:  "en",
		Timeout:   10 * time.Second,
	}
}

// DefaultPath returns ~/.config/homai/panel.yaml, honouring
// XDG_CONFIG_HOME.
func DefaultPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "homai", "panel.yaml"), nil
}

// Load reads the file at path over the defaults. A missing file is not an
// error. An empty path means DefaultPath.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return cfg, err
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, cfg.Validate()
}

// Save writes the configuration to path, creating its directory.
func (c Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the fields a client needs.
func (c Config) Validate() error {
	u, err := url.Parse(c.Server)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: server %q is not an absolute URL", ErrInvalid, c.Server)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("%w: unsupported server scheme %q", ErrInvalid, u.Scheme)
	}
	if c.Transport != TransportHTTP && c.Transport != TransportWebSocket {
		return fmt.Errorf("%w: transport must be %q or %q", ErrInvalid, TransportHTTP, TransportWebSocket)
	}
	if c.EntryID == "" {
		return fmt.Errorf("%w: entry_id is required", ErrInvalid)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalid)
	}
	return nil
}

// Dial creates a client for the configured server. WebSocket connections
// are established lazily on the first call.
func (c Config) Dial() (*rpc.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Transport {
	case TransportHTTP:
		server := c.Server
		switch {
		case strings.HasPrefix(server, "wss://"):
			server = "https://" + strings.TrimPrefix(server, "wss://")
		case strings.HasPrefix(server, "ws://"):
			server = "http://" + strings.TrimPrefix(server, "ws://")
		}
		return rpc.NewClient(rpc.NewHTTPTransport(server, c.Timeout)), nil
	default:
		return rpc.NewClient(rpc.NewWSTransport(c.Server, c.Timeout)), nil
	}
}

// Localizer returns the catalog for the configured language.
func (c Config) Localizer() (*i18n.Catalog, error) {
	return i18n.New(c.Language)
}

// Channel addresses a paramset of a channel in the configured entry.
func (c Config) Channel(address, key string) rpc.ChannelRef {
	return rpc.ChannelRef{
		EntryID:        c.EntryID,
		InterfaceID:    c.InterfaceID,
		ChannelAddress: address,
		ParamsetKey:    key,
	}
}

// Link addresses a link seen from its receiver.
func (c Config) Link(receiver, sender string) rpc.LinkRef {
	return rpc.LinkRef{
		EntryID:        c.EntryID,
		InterfaceID:    c.InterfaceID,
		ChannelAddress: receiver,
		PeerAddress:    sender,
	}
}

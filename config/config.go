// Package config loads and owns the live configuration for the beelzebub
// client and server. Client configuration can be hot-reloaded; see
// Supervisor.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

const defaultServerAddress = "127.0.0.1:8080"

// Client is the configuration for the tracking client.
type Client struct {
	// MinimumDuration is the shortest session, in seconds, that is reported
	// to the server. Shorter sessions are discarded.
	MinimumDuration int `yaml:"minimumDuration"`
	// Monitor lists directory roots. Processes whose executable lives under
	// one of these roots are tracked.
	Monitor []string `yaml:"monitor"`
	// URL is the base URL of the beelzebub server.
	URL string `yaml:"url"`
	// Secret is attached to submissions when set. It must match the
	// server's secret if the server has one configured.
	Secret string `yaml:"secret"`
}

// MinimumSessionDuration returns MinimumDuration as a time.Duration.
func (c *Client) MinimumSessionDuration() time.Duration {
	return time.Duration(c.MinimumDuration) * time.Second
}

// ParsedURL returns the configured server URL.
func (c *Client) ParsedURL() (*url.URL, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return nil, xerrors.Errorf("parse url %q: %w", c.URL, err)
	}
	return u, nil
}

func (c *Client) Validate() error {
	if c.MinimumDuration < 0 {
		return xerrors.Errorf("minimumDuration must not be negative, got %d", c.MinimumDuration)
	}
	if c.URL == "" {
		return xerrors.New("url must be set")
	}
	u, err := c.ParsedURL()
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return xerrors.Errorf("url %q must be http or https", c.URL)
	}
	if u.Host == "" {
		return xerrors.Errorf("url %q must include a host", c.URL)
	}
	return nil
}

// Server is the configuration for the ingestion server.
type Server struct {
	// DBURL is the PostgreSQL connection string.
	DBURL string `yaml:"dbUrl"`
	// Secret, when set, is required on all submissions.
	Secret string `yaml:"secret"`
	// Address is the listen address. Defaults to 127.0.0.1:8080.
	Address string `yaml:"address"`
}

func (s *Server) Validate() error {
	if s.DBURL == "" {
		return xerrors.New("dbUrl must be set")
	}
	return nil
}

// LoadClient reads and validates a client configuration file.
func LoadClient(path string) (*Client, error) {
	var cfg Client
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, xerrors.Errorf("validate %q: %w", path, err)
	}
	return &cfg, nil
}

// LoadServer reads and validates a server configuration file.
func LoadServer(path string) (*Server, error) {
	var cfg Server
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Address == "" {
		cfg.Address = defaultServerAddress
	}
	if err := cfg.Validate(); err != nil {
		return nil, xerrors.Errorf("validate %q: %w", path, err)
	}
	return &cfg, nil
}

func load(path string, value interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Errorf("read config %q: %w", path, err)
	}
	err = yaml.Unmarshal(data, value)
	if err != nil {
		return xerrors.Errorf("unmarshal config %q: %w", path, err)
	}
	return nil
}

// DefaultDir returns the per-user configuration directory.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", xerrors.Errorf("user config dir: %w", err)
	}
	return filepath.Join(base, "beelzebub"), nil
}

// DefaultClientPath returns the default client configuration file location.
func DefaultClientPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "client.yaml"), nil
}

// DefaultServerPath returns the default server configuration file location.
func DefaultServerPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "server.yaml"), nil
}

package o3config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	o3chat "github.com/EetuSeppa/O3-chat-client"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultServerURL is used when nothing selects a server.
	DefaultServerURL = "https://localhost:8001/"
	// DefaultVersion is the protocol version assumed when none is configured.
	DefaultVersion = 3
)

type Config struct {
	Servers           map[string]Server  `yaml:"servers,omitempty"`
	Accounts          map[string]Account `yaml:"accounts,omitempty"`
	DefaultAccount    string             `yaml:"default_account,omitempty"`
	ProtocolVersion   int                `yaml:"protocol_version,omitempty"`
	AutoFetchInterval string             `yaml:"auto_fetch_interval,omitempty"`
	Color             bool               `yaml:"color,omitempty"`
}

type Server struct {
	URL          string `yaml:"url,omitempty"`
	Certificate  string `yaml:"certificate,omitempty"`
	InsecureHTTP bool   `yaml:"insecure_http,omitempty"`
}

type Account struct {
	Server   string `yaml:"server,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Nick     string `yaml:"nick,omitempty"`
	Email    string `yaml:"email,omitempty"`
}

func DefaultPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv("O3CHAT_CONFIG_PATH")); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "o3chat", "config.yaml"), nil
}

func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. A missing file is an empty config.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{
				Servers:  map[string]Server{},
				Accounts: map[string]Account{},
			}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.initMaps()
	return &cfg, nil
}

func (c *Config) initMaps() {
	if c.Servers == nil {
		c.Servers = map[string]Server{}
	}
	if c.Accounts == nil {
		c.Accounts = map[string]Account{}
	}
}

// SaveTo writes the config atomically. The file holds passwords, so it is
// created with mode 0600.
func (c *Config) SaveTo(path string) error {
	c.initMaps()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".config.yaml.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

func Update(fn func(cfg *Config) error) error {
	path, err := DefaultPath()
	if err != nil {
		return err
	}
	return UpdateAt(path, fn)
}

// UpdateAt loads, modifies and saves the config at path while holding an
// exclusive lock on path+".lock".
func UpdateAt(path string, fn func(cfg *Config) error) error {
	if fn == nil {
		return errors.New("nil update function")
	}

	lock, err := LockExclusive(path + ".lock")
	if err != nil {
		return fmt.Errorf("lock config: %w", err)
	}
	defer func() { _ = lock.Close() }()

	cfg, err := LoadFrom(path)
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return cfg.SaveTo(path)
}

// Interval returns the auto-fetch interval, or zero when unset.
func (c *Config) Interval() (time.Duration, error) {
	raw := strings.TrimSpace(c.AutoFetchInterval)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("auto_fetch_interval: %w", err)
	}
	return d, nil
}

// Validate checks the values the client cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if v := c.ProtocolVersion; v != 0 && (v < int(o3chat.MinVersion) || v > int(o3chat.MaxVersion)) {
		errs = append(errs, fmt.Errorf("protocol_version %d: %w", v, o3chat.ErrInvalidVersion))
	}
	if d, err := c.Interval(); err != nil {
		errs = append(errs, err)
	} else if d < 0 || (d == 0 && strings.TrimSpace(c.AutoFetchInterval) != "") {
		errs = append(errs, fmt.Errorf("auto_fetch_interval must be positive, got %s", c.AutoFetchInterval))
	}
	for name, srv := range c.Servers {
		if strings.TrimSpace(srv.URL) == "" {
			continue
		}
		if err := ValidateBaseURL(srv.URL); err != nil {
			errs = append(errs, fmt.Errorf("server %q: %w", name, err))
		}
	}
	for name, acct := range c.Accounts {
		if strings.TrimSpace(acct.Server) == "" {
			errs = append(errs, fmt.Errorf("account %q missing server", name))
		}
	}
	if d := strings.TrimSpace(c.DefaultAccount); d != "" {
		if _, ok := c.Accounts[d]; !ok {
			errs = append(errs, fmt.Errorf("default_account %q is not a configured account", d))
		}
	}
	return errors.Join(errs...)
}

package o3config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	o3chat "github.com/EetuSeppa/O3-chat-client"
)

// Selection is everything the console needs to open a session.
type Selection struct {
	AccountName string
	ServerName  string

	URL          string
	Certificate  string
	InsecureHTTP bool
	Version      o3chat.ProtocolVersion

	Username string
	Password string
	Nick     string
	Email    string

	Channel string

	// ContextPath is the directory context file that applied, if any.
	ContextPath string
}

// LoggedIn reports whether the selection carries usable credentials.
func (s *Selection) LoggedIn() bool {
	return s.Username != "" && s.Password != ""
}

type ResolveOptions struct {
	AccountName string
	ServerName  string

	WorkingDir  string
	ContextPath string
	Context     *DirContext

	URLOverride         string
	CertificateOverride string
	VersionOverride     int
	InsecureHTTP        bool

	AllowEnvOverrides bool
}

// Resolve picks the server and account to use. An explicit account wins;
// otherwise the directory context and the config defaults are consulted.
// When no account matches, the selection has no credentials and the user
// logs in interactively.
func Resolve(cfg *Config, opts ResolveOptions) (*Selection, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.initMaps()

	ctx := opts.Context
	contextPath := ""
	if ctx == nil && strings.TrimSpace(opts.ContextPath) != "" {
		loaded, err := LoadContext(opts.ContextPath)
		if err != nil {
			return nil, err
		}
		ctx, contextPath = loaded, opts.ContextPath
	}
	if ctx == nil && strings.TrimSpace(opts.WorkingDir) != "" {
		loaded, path, err := FindContext(opts.WorkingDir)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("invalid directory context: %w", err)
			}
		} else {
			ctx, contextPath = loaded, path
		}
	}
	if ctx == nil {
		ctx = &DirContext{}
	}
	if ctx.ServerAccounts == nil {
		ctx.ServerAccounts = map[string]string{}
	}

	env := func(key string) string {
		if !opts.AllowEnvOverrides {
			return ""
		}
		return strings.TrimSpace(os.Getenv(key))
	}

	accountName := strings.TrimSpace(opts.AccountName)
	if accountName == "" {
		accountName = env("O3CHAT_ACCOUNT")
	}
	serverName := strings.TrimSpace(opts.ServerName)
	if serverName == "" {
		serverName = env("O3CHAT_SERVER")
	}
	baseURL := strings.TrimSpace(opts.URLOverride)
	if baseURL == "" {
		if v := env("O3CHAT_URL"); v != "" {
			if err := ValidateBaseURL(v); err != nil {
				return nil, fmt.Errorf("invalid O3CHAT_URL: %w", err)
			}
			baseURL = v
		}
	}

	if accountName == "" {
		accountName = chooseAccount(cfg, ctx, serverName)
	}

	var acct Account
	if accountName != "" {
		found, ok := cfg.Accounts[accountName]
		if !ok {
			return nil, fmt.Errorf("unknown account %q (configure it in your o3chat config file)", accountName)
		}
		if strings.TrimSpace(found.Server) == "" {
			return nil, fmt.Errorf("account %q missing server", accountName)
		}
		acct = found
		if serverName == "" {
			serverName = strings.TrimSpace(acct.Server)
		}
	}

	srv := cfg.Servers[serverName]
	insecure := opts.InsecureHTTP || srv.InsecureHTTP
	if baseURL == "" {
		u, err := resolveServerURL(cfg, serverName, insecure)
		if err != nil {
			return nil, err
		}
		baseURL = u
	}

	version, err := resolveVersion(cfg, opts.VersionOverride, env("O3CHAT_VERSION"))
	if err != nil {
		return nil, err
	}

	sel := &Selection{
		AccountName:  accountName,
		ServerName:   serverName,
		URL:          baseURL,
		Certificate:  strings.TrimSpace(srv.Certificate),
		InsecureHTTP: insecure,
		Version:      version,
		Username:     strings.TrimSpace(acct.Username),
		Password:     acct.Password,
		Nick:         strings.TrimSpace(acct.Nick),
		Email:        strings.TrimSpace(acct.Email),
		Channel:      normalizeChannel(ctx.Channel),
		ContextPath:  contextPath,
	}
	if v := strings.TrimSpace(opts.CertificateOverride); v != "" {
		sel.Certificate = v
	}
	if v := env("O3CHAT_USERNAME"); v != "" {
		sel.Username = v
	}
	if v := env("O3CHAT_PASSWORD"); v != "" {
		sel.Password = v
	}
	return sel, nil
}

// chooseAccount picks an account deterministically from the directory
// context and the config defaults. It returns "" when none applies.
func chooseAccount(cfg *Config, ctx *DirContext, serverName string) string {
	matches := func(name string) bool {
		acct, ok := cfg.Accounts[name]
		return ok && (serverName == "" || strings.TrimSpace(acct.Server) == serverName)
	}

	if serverName != "" {
		if v := strings.TrimSpace(ctx.ServerAccounts[serverName]); v != "" {
			return v
		}
	}
	for _, name := range []string{strings.TrimSpace(ctx.DefaultAccount), strings.TrimSpace(cfg.DefaultAccount)} {
		if name != "" && matches(name) {
			return name
		}
	}
	return ""
}

func resolveVersion(cfg *Config, override int, fromEnv string) (o3chat.ProtocolVersion, error) {
	switch {
	case override != 0:
		return o3chat.ClampVersion(override), nil
	case fromEnv != "":
		v, err := strconv.Atoi(fromEnv)
		if err != nil {
			return 0, fmt.Errorf("invalid O3CHAT_VERSION %q: %w", fromEnv, err)
		}
		return o3chat.ClampVersion(v), nil
	case cfg.ProtocolVersion != 0:
		return o3chat.ClampVersion(cfg.ProtocolVersion), nil
	}
	return DefaultVersion, nil
}

func resolveServerURL(cfg *Config, serverName string, insecure bool) (string, error) {
	serverName = strings.TrimSpace(serverName)
	if serverName == "" {
		if insecure {
			return strings.Replace(DefaultServerURL, "https://", "http://", 1), nil
		}
		return DefaultServerURL, nil
	}
	if srv, ok := cfg.Servers[serverName]; ok && strings.TrimSpace(srv.URL) != "" {
		return strings.TrimSpace(srv.URL), nil
	}

	// Derive from server key (host:port or full URL).
	return DeriveBaseURLFromServerName(serverName, insecure)
}

// DeriveBaseURLFromServerName turns a host:port key into a base URL. Full
// URLs are returned unchanged.
func DeriveBaseURLFromServerName(name string, insecure bool) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("empty server name")
	}
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		return name, nil
	}
	scheme := "https"
	if insecure {
		scheme = "http"
	}
	return scheme + "://" + name, nil
}

func ValidateBaseURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("empty base URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid base URL %q", raw)
	}
	return nil
}

package o3config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ContextFile is the directory context's path relative to the directory
// it applies to.
var ContextFile = filepath.Join(".o3chat", "context")

// DirContext pins an account and a channel to a directory tree. The
// nearest .o3chat/context above the working directory applies.
//
//	default_account: me
//	server_accounts:
//	  uni: student
//	channel: golang
type DirContext struct {
	DefaultAccount string            `yaml:"default_account,omitempty"`
	ServerAccounts map[string]string `yaml:"server_accounts,omitempty"`

	// Channel is joined after login. Empty means the main channel.
	Channel string `yaml:"channel,omitempty"`
}

func (d *DirContext) normalize() {
	if d.ServerAccounts == nil {
		d.ServerAccounts = map[string]string{}
	}
	d.DefaultAccount = strings.TrimSpace(d.DefaultAccount)
	d.Channel = normalizeChannel(d.Channel)
}

// normalizeChannel maps the main channel's aliases to "".
func normalizeChannel(name string) string {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, "main") {
		return ""
	}
	return name
}

// FindContext walks up from startDir to the nearest context file and
// loads it. It returns an error wrapping os.ErrNotExist when there is none.
func FindContext(startDir string) (*DirContext, string, error) {
	dir := filepath.Clean(startDir)
	for {
		p := filepath.Join(dir, ContextFile)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			ctx, err := LoadContext(p)
			if err != nil {
				return nil, "", err
			}
			return ctx, p, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, "", fmt.Errorf("no %s above %s: %w", ContextFile, startDir, os.ErrNotExist)
		}
		dir = parent
	}
}

// LoadContext reads the context file at path.
func LoadContext(path string) (*DirContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ctx DirContext
	if err := yaml.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	ctx.normalize()
	return &ctx, nil
}

// SaveTo writes the context to path, creating its directory.
func (d *DirContext) SaveTo(path string) error {
	if d == nil {
		return errors.New("nil context")
	}
	d.normalize()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// RememberChannel records channel in the context file at path, so the
// next session started below it rejoins the channel. Writers hold an
// exclusive lock on path+".lock", as config updates do.
func RememberChannel(path, channel string) error {
	lock, err := LockExclusive(path + ".lock")
	if err != nil {
		return fmt.Errorf("lock context: %w", err)
	}
	defer func() { _ = lock.Close() }()

	ctx, err := LoadContext(path)
	if err != nil {
		return err
	}
	channel = normalizeChannel(channel)
	if ctx.Channel == channel {
		return nil
	}
	ctx.Channel = channel
	return ctx.SaveTo(path)
}

// Package prefs remembers the console settings an operator toggles at run
// time, such as the theme and queue filter along with the notification mute
// switch. They live in ~/.config/ssportal/prefs.toml, separate from the
// operator-edited config file. A missing or damaged file is never fatal; the
// console starts with defaults and overwrites it on the next change.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Prefs is the persisted console state.
type Prefs struct {
	Theme              string `toml:"theme"`
	NotificationsMuted bool   `toml:"notifications_muted"`
	Filter             string `toml:"filter,omitempty"` // all, new, in_progress, mine
}

const (
	defaultPrefsPath = "~/.config/ssportal/prefs.toml"
	defaultTheme     = "Nightfox"
)

// DefaultPath is used when no path is given.
func DefaultPath() string {
	return defaultPrefsPath
}

func defaults() Prefs {
	return Prefs{Theme: defaultTheme}
}

// Load returns the stored preferences, or defaults when the file cannot be
// read or parsed. Neither case is reported as an error.
func Load(path string) (Prefs, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return defaults(), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return defaults(), nil
	}

	p := defaults()
	if err := toml.Unmarshal(data, &p); err != nil {
		return defaults(), nil
	}
	return p.normalized(), nil
}

func (p Prefs) normalized() Prefs {
	p.Theme = strings.TrimSpace(p.Theme)
	if p.Theme == "" {
		p.Theme = defaultTheme
	}
	p.Filter = strings.ToLower(strings.TrimSpace(p.Filter))
	return p
}

// Save replaces the file at path with p. The write goes to a sibling temp
// file first, so a crash mid-write leaves the previous file intact.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve prefs path: %w", err)
	}
	data, err := toml.Marshal(p.normalized())
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.toml")
	if err != nil {
		return fmt.Errorf("create temp prefs: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), resolved); err != nil {
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}

// resolvePath expands a leading ~ and makes the path absolute.
func resolvePath(path string) (string, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		p = defaultPrefsPath
	}
	if rest, ok := strings.CutPrefix(p, "~"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		p = filepath.Join(home, rest)
	}
	return filepath.Abs(p)
}

// Package player remembers which user_id this machine plays as, so CLI
// commands do not need --user every time.
package player

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Profile is the locally saved identity.
type Profile struct {
	UserID       string    `json:"user_id"`
	ProfileImage int       `json:"profile_image"`
	Server       string    `json:"server"`
	RegisteredAt time.Time `json:"registered_at"`
}

type Manager struct {
	profile    *Profile
	configPath string
}

// NewManager loads the profile from dir, or from ~/.stageboard when dir is
// empty. A missing profile is not an error.
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".stageboard")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{configPath: filepath.Join(dir, "player.json")}
	if err := m.load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", m.configPath, err)
	}
	return m, nil
}

// Current returns the saved profile, or nil when none is saved.
func (m *Manager) Current() *Profile {
	return m.profile
}

// UserID returns explicit when set, otherwise the saved user id.
func (m *Manager) UserID(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if m.profile == nil || m.profile.UserID == "" {
		return "", errors.New("no player registered; run 'stageboard register <user_id>' or pass --user")
	}
	return m.profile.UserID, nil
}

func (m *Manager) Save(p Profile) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.configPath, data, 0o600); err != nil {
		return err
	}
	m.profile = &p
	return nil
}

// Forget removes the saved profile.
func (m *Manager) Forget() error {
	m.profile = nil
	if err := os.Remove(m.configPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	m.profile = &p
	return nil
}

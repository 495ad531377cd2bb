package agent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ErrProfileNotFound indicates a profile file does not exist.
var ErrProfileNotFound = errors.New("agent profile not found")

// Profile holds optional per-agent launch overrides, loaded from a TOML
// file in the profile directory.
type Profile struct {
	// Name is the profile name (defaults to the file name).
	Name string `toml:"name"`

	// AgentType selects the adapter this profile applies to.
	AgentType string `toml:"agent_type"`

	// Command overrides the adapter's default executable.
	Command string `toml:"command"`

	// ExtraArgs are appended to the adapter's argument list.
	ExtraArgs []string `toml:"extra_args"`

	// Env contains extra environment variables for the agent process.
	Env map[string]string `toml:"env"`
}

// LoadProfile reads a single profile TOML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var profile Profile
	if err := toml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}

	if profile.Name == "" {
		profile.Name = strings.TrimSuffix(filepath.Base(path), ".toml")
	}

	return &profile, nil
}

// LoadProfiles reads all profile TOML files in dir, keyed by profile
// name. A missing directory yields an empty map.
func LoadProfiles(dir string) (map[string]*Profile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Profile{}, nil
		}
		return nil, fmt.Errorf("failed to read profile dir: %w", err)
	}

	profiles := make(map[string]*Profile)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		profile, err := LoadProfile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		profiles[profile.Name] = profile
	}

	return profiles, nil
}

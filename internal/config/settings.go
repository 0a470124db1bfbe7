package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Default sweep policy
const (
	DefaultStuckBuildMaxAgeMinutes = 30
	DefaultPortAbandonMaxAgeDays   = 7
	DefaultSweepIntervalMinutes    = 5
)

// Settings holds optional configuration loaded from settings.json.
// Pointer fields distinguish "unset" from zero values; precedence is
// CLI flags > env vars > settings.json > defaults.
type Settings struct {
	DBPath                  string `json:"dbPath,omitempty"`
	Debug                   *bool  `json:"debug,omitempty"`
	MaxLogFiles             *int   `json:"maxLogFiles,omitempty"`
	PortAbandonMaxAgeDays   *int   `json:"portAbandonMaxAgeDays,omitempty"`
	RedisAddr               string `json:"redisAddr,omitempty"`
	RedisDB                 int    `json:"redisDb,omitempty"`
	RedisPassword           string `json:"redisPassword,omitempty"`
	StuckBuildMaxAgeMinutes *int   `json:"stuckBuildMaxAgeMinutes,omitempty"`
	SweepIntervalMinutes    *int   `json:"sweepIntervalMinutes,omitempty"`
}

// Home returns the sentryvibe home directory, honoring SENTRYVIBE_HOME
func Home() string {
	if env := os.Getenv("SENTRYVIBE_HOME"); env != "" {
		return ExpandPath(env)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".sentryvibe"
	}
	return filepath.Join(homeDir, ".sentryvibe")
}

// GetDBPath returns the SQLite database path, honoring SENTRYVIBE_DB
func GetDBPath() string {
	if env := os.Getenv("SENTRYVIBE_DB"); env != "" {
		return ExpandPath(env)
	}
	return filepath.Join(Home(), "state.db")
}

// SettingsPath returns the settings.json location
func SettingsPath() string {
	return filepath.Join(Home(), "settings.json")
}

// LoadSettings reads settings.json. A missing file is not an error;
// defaults apply.
func LoadSettings() (*Settings, error) {
	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	return &s, nil
}

// ExpandPath expands a leading ~ to the user's home directory
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return homeDir
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

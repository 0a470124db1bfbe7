package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/codyde/sentryvibe-sub001/internal/config"
)

// SettingsCmd displays the settings file location and an example
type SettingsCmd struct {
	Format string `help:"Output format: text or json" enum:"text,json" default:"text"`
}

// settingsExample documents every supported settings.json key
func settingsExample() map[string]any {
	return map[string]any{
		"dbPath":                  "~/.sentryvibe/state.db",
		"debug":                   false,
		"maxLogFiles":             1000,
		"portAbandonMaxAgeDays":   config.DefaultPortAbandonMaxAgeDays,
		"redisAddr":               "127.0.0.1:6379",
		"redisDb":                 0,
		"redisPassword":           "",
		"stuckBuildMaxAgeMinutes": config.DefaultStuckBuildMaxAgeMinutes,
		"sweepIntervalMinutes":    config.DefaultSweepIntervalMinutes,
	}
}

// Run executes the settings command
func (s *SettingsCmd) Run(cli *CLI) error {
	if s.Format == "json" {
		data, err := json.MarshalIndent(map[string]any{
			"settings_file": config.SettingsPath(),
			"format":        settingsExample(),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Settings file: %s\n\n", config.SettingsPath())
	fmt.Println("Example settings.json:")
	data, err := json.MarshalIndent(settingsExample(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

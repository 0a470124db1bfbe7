package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/codyde/sentryvibe-sub001/internal/config"
)

// CleanupCmd runs one-shot maintenance sweeps
type CleanupCmd struct {
	Builds CleanupBuildsCmd `cmd:"builds" help:"Finalize builds that stopped emitting events"`
	Ports  CleanupPortsCmd  `cmd:"ports" help:"Release port reservations with no live build"`
}

// CleanupBuildsCmd sweeps stuck builds
type CleanupBuildsCmd struct {
	MaxAgeMinutes int `help:"Age in minutes beyond which a non-terminal build counts as stuck" default:"-1"`
}

// Run executes the builds sweep
func (c *CleanupBuildsCmd) Run(cli *CLI) error {
	minutes := c.MaxAgeMinutes
	if minutes < 0 {
		minutes = config.DefaultStuckBuildMaxAgeMinutes
		if s := cli.settings; s != nil && s.StuckBuildMaxAgeMinutes != nil && *s.StuckBuildMaxAgeMinutes > 0 {
			minutes = *s.StuckBuildMaxAgeMinutes
		}
	}

	reaped, err := cli.Container.Manager.CleanupStuckBuilds(context.Background(), time.Duration(minutes)*time.Minute)
	if err != nil {
		return err
	}
	fmt.Printf("Finalized %d stuck build(s)\n", reaped)
	return nil
}

// CleanupPortsCmd sweeps abandoned port reservations
type CleanupPortsCmd struct {
	MaxAgeDays int `help:"Age in days beyond which an unclaimed reservation counts as abandoned" default:"-1"`
}

// Run executes the ports sweep
func (c *CleanupPortsCmd) Run(cli *CLI) error {
	days := c.MaxAgeDays
	if days < 0 {
		days = config.DefaultPortAbandonMaxAgeDays
		if s := cli.settings; s != nil && s.PortAbandonMaxAgeDays != nil && *s.PortAbandonMaxAgeDays > 0 {
			days = *s.PortAbandonMaxAgeDays
		}
	}

	released, err := cli.Container.Allocator.CleanupAbandoned(context.Background(), time.Duration(days)*24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Printf("Released %d abandoned reservation(s)\n", released)
	return nil
}

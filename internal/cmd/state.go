package cmd

import (
	"context"
	"fmt"
)

// StateCmd prints the cached snapshot for a session. Consumers use
// this to reconcile after missed broadcasts.
type StateCmd struct {
	SessionID string `arg:"" help:"Session whose snapshot to show"`
	Rebuild   bool   `help:"Rebuild the snapshot from the store instead of reading the cached blob"`
}

// Run executes the state command
func (s *StateCmd) Run(cli *CLI) error {
	ctx := context.Background()

	if s.Rebuild {
		_, raw, err := cli.Container.Manager.Rebuild(ctx, s.SessionID)
		if err != nil {
			return err
		}
		fmt.Println(string(raw))
		return nil
	}

	raw, version, err := cli.Container.Manager.LatestSnapshot(ctx, s.SessionID)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return fmt.Errorf("no cached snapshot for session %s (version %d)", s.SessionID, version)
	}
	fmt.Println(string(raw))
	return nil
}

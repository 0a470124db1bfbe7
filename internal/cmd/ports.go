package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codyde/sentryvibe-sub001/internal/services"
)

// PortsCmd manages dev-server port reservations
type PortsCmd struct {
	Reserve   PortsReserveCmd   `cmd:"reserve" help:"Reserve a port for a project"`
	Release   PortsReleaseCmd   `cmd:"release" help:"Release a project's port reservation"`
	Reconcile PortsReconcileCmd `cmd:"reconcile" help:"Move a reservation to the port the dev server actually bound"`
}

// PortsReserveCmd reserves a port for a project
type PortsReserveCmd struct {
	ProjectID     string `arg:"" help:"Project to reserve a port for"`
	Framework     string `help:"Framework classification hint (next, vite, astro, node)"`
	PreferredPort int    `help:"Port to try first when it lies in the framework's range"`
	ProjectType   string `help:"Project type metadata used for keyword detection"`
	RunCommand    string `help:"Dev-server run command used for keyword detection"`
	SkipProbe     bool   `help:"Trust the durable record without binding the port locally"`
	Format        string `help:"Output format: text or json" enum:"text,json" default:"text"`
}

// Run executes the reserve command
func (p *PortsReserveCmd) Run(cli *CLI) error {
	result, err := cli.Container.Allocator.Reserve(context.Background(), services.ReserveRequest{
		DetectedFramework: p.Framework,
		PreferredPort:     p.PreferredPort,
		ProjectID:         p.ProjectID,
		ProjectType:       p.ProjectType,
		RunCommand:        p.RunCommand,
		SkipProbe:         p.SkipProbe,
	})
	if err != nil {
		return err
	}

	if p.Format == "json" {
		data, err := json.Marshal(map[string]any{
			"envVar":    result.EnvVar,
			"framework": result.Framework,
			"port":      result.Port,
		})
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("%s=%d (%s)\n", result.EnvVar, result.Port, result.Framework)
	return nil
}

// PortsReleaseCmd releases a project's reservation
type PortsReleaseCmd struct {
	ProjectID string `arg:"" help:"Project whose reservation to release"`
}

// Run executes the release command
func (p *PortsReleaseCmd) Run(cli *CLI) error {
	return cli.Container.Allocator.Release(context.Background(), p.ProjectID)
}

// PortsReconcileCmd aligns the reservation with the observed port
type PortsReconcileCmd struct {
	ProjectID string `arg:"" help:"Project whose reservation to move"`
	Port      int    `arg:"" help:"Port the dev server actually bound"`
}

// Run executes the reconcile command
func (p *PortsReconcileCmd) Run(cli *CLI) error {
	return cli.Container.Allocator.Reconcile(context.Background(), p.ProjectID, p.Port)
}

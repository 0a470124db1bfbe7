package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/codyde/sentryvibe-sub001/internal/cmd"
	"github.com/codyde/sentryvibe-sub001/internal/config"
	"github.com/codyde/sentryvibe-sub001/version"
)

func main() {
	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load settings: %v\n", err)
	}

	var cli cmd.CLI
	cli.SetSettings(settings)

	ctx := kong.Parse(&cli,
		kong.Name("sentryvibe-sync"),
		kong.Description(version.Tagline),
		kong.UsageOnError(),
		kong.Vars{"version": version.Info()},
	)
	defer cli.Close()

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

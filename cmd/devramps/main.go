package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Dev-Ramps/DevRamps-CLI/cmd/devramps/commands"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/di"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "devramps",
		Usage: "Provision DevRamps trust and deployment infrastructure across AWS accounts",
		Description: `Computes the set of CloudFormation stacks your pipelines require,
reconciles them against what is already deployed, and deploys them with
bounded concurrency: account trust stacks first, everything else after.`,
		Commands: []*cli.Command{
			commands.PlanCommand(&logger),
			commands.BootstrapCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}

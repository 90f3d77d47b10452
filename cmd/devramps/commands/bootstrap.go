package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// BootstrapCommand returns the bootstrap command: build the plan and deploy
// every stack in it.
func BootstrapCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "bootstrap",
		Usage: "Deploy all trust and deployment infrastructure stacks",
		Flags: engineFlags(),
		Action: func(c *cli.Context) error {
			ctx := logger.WithContext(c.Context)

			eng, err := newEngine(ctx, c)
			if err != nil {
				return err
			}

			p, err := eng.buildPlan(ctx)
			if err != nil {
				return err
			}

			logger.Info().
				Int("stack_count", p.Size()).
				Int("account_count", len(p.Accounts)).
				Msg("Deploying plan")

			result, err := eng.executor.Execute(ctx, eng.mergeCtx, p)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(result); err != nil {
				return err
			}

			if !result.Success {
				return fmt.Errorf("%d of %d stacks failed", result.Failed, result.Failed+result.Succeeded)
			}
			return nil
		},
	}
}

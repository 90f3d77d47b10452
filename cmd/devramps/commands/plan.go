package commands

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/Dev-Ramps/DevRamps-CLI/internal/plan"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/stack"
)

type planOutput struct {
	Plan     *plan.Plan          `json:"plan"`
	Previews []*stack.ChangePlan `json:"previews,omitempty"`
}

// PlanCommand returns the plan command: build the deployment plan and,
// optionally, per-stack change previews, without deploying anything.
func PlanCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Show the stacks a bootstrap run would deploy, without deploying",
		Flags: append(engineFlags(),
			&cli.BoolFlag{
				Name:  "preview",
				Usage: "Compute per-resource change previews via change sets",
			},
		),
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

			output := planOutput{Plan: p}
			if c.Bool("preview") {
				output.Previews, err = eng.executor.Preview(ctx, eng.mergeCtx, p)
				if err != nil {
					return err
				}
			}

			logger.Info().
				Int("stack_count", p.Size()).
				Int("account_count", len(p.Accounts)).
				Msg("Deployment plan built")

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(output)
		},
	}
}

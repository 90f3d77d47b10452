package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Dev-Ramps/DevRamps-CLI/internal/credentials"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/di"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/executor"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/merge"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/models"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/plan"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/progress"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/stack"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/templates"
)

// engineFlags are shared by the plan and bootstrap commands.
func engineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "org",
			Usage:    "Organization slug",
			Required: true,
			EnvVars:  []string{"DEVRAMPS_ORG"},
		},
		&cli.StringFlag{
			Name:    "cicd-account",
			Usage:   "CI/CD account id (defaults to the caller's account)",
			EnvVars: []string{"DEVRAMPS_CICD_ACCOUNT"},
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "CI/CD home region",
			Value:   "us-east-1",
			EnvVars: []string{"AWS_REGION"},
		},
		&cli.StringFlag{
			Name:     "pipelines",
			Usage:    "Path to the parsed pipelines YAML file",
			Required: true,
			EnvVars:  []string{"DEVRAMPS_PIPELINES"},
		},
		&cli.StringFlag{
			Name:     "templates",
			Usage:    "Directory containing generated stack templates",
			Required: true,
			EnvVars:  []string{"DEVRAMPS_TEMPLATES"},
		},
		&cli.StringFlag{
			Name:    "staging-bucket",
			Usage:   "S3 bucket for templates too large to submit inline",
			EnvVars: []string{"DEVRAMPS_STAGING_BUCKET"},
		},
		&cli.DurationFlag{
			Name:    "stack-timeout",
			Usage:   "Per-stack deployment timeout",
			Value:   stack.DefaultTimeout,
			EnvVars: []string{"DEVRAMPS_STACK_TIMEOUT"},
		},
	}
}

// engine bundles everything both commands need once flags are resolved.
type engine struct {
	auth      models.AuthContext
	pipelines []models.Pipeline
	mergeCtx  *merge.Context
	builder   *plan.Builder
	executor  *executor.Executor
	sink      *progress.MemorySink
}

func newEngine(ctx context.Context, c *cli.Context) (*engine, error) {
	pipelines, err := models.LoadPipelines(c.String("pipelines"))
	if err != nil {
		return nil, err
	}

	container, err := di.New(
		di.WithRegion(c.String("region")),
		di.WithStagingBucket(c.String("staging-bucket")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build container: %w", err)
	}

	resolver := di.MustGet[*credentials.Resolver](container)
	cicdAccountID := c.String("cicd-account")
	if cicdAccountID == "" {
		cicdAccountID, err = resolver.CallerAccountID(ctx)
		if err != nil {
			return nil, err
		}
	}

	auth := models.AuthContext{
		OrgSlug:       c.String("org"),
		CICDAccountID: cicdAccountID,
		CICDRegion:    c.String("region"),
	}

	clients := executor.NewAccountClients(
		resolver,
		di.MustGet[executor.ClientFactory](container),
		auth.CICDAccountID,
	)

	sink := progress.NewMemorySink()
	exec := executor.New(
		clients,
		templates.NewFSSource(c.String("templates")),
		di.MustGet[*merge.Registry](container),
		executor.WithSink(sink),
		executor.WithStager(di.MustGet[*stack.Stager](container)),
		executor.WithTimeout(c.Duration("stack-timeout")),
	)

	return &engine{
		auth:      auth,
		pipelines: pipelines,
		mergeCtx: &merge.Context{
			OrgSlug:       auth.OrgSlug,
			CICDAccountID: auth.CICDAccountID,
			CICDRegion:    auth.CICDRegion,
			Pipelines:     pipelines,
		},
		builder:  plan.NewBuilder(clients),
		executor: exec,
		sink:     sink,
	}, nil
}

func (e *engine) buildPlan(ctx context.Context) (*plan.Plan, error) {
	p, err := e.builder.Build(ctx, e.auth, e.pipelines)
	if err != nil {
		return nil, fmt.Errorf("failed to build deployment plan: %w", err)
	}
	return p, nil
}

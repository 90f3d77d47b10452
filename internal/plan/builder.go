package plan

import (
	"context"
	"slices"

	"github.com/rs/zerolog"

	"github.com/Dev-Ramps/DevRamps-CLI/internal/models"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/stack"
)

// StatusSource probes the current status of a named stack in a target
// account and region, resolving cross-account credentials as needed.
type StatusSource interface {
	Status(ctx context.Context, accountID, region, stackName string) (*stack.Status, error)
}

// Builder derives the deployment plan for one bootstrap run.
type Builder struct {
	statuses StatusSource
}

func NewBuilder(statuses StatusSource) *Builder {
	return &Builder{statuses: statuses}
}

// Build produces the full set of stack deployments: one org stack, one
// pipeline stack per pipeline, one account stack per distinct account
// touched (CI/CD account first), one stage stack per pipeline stage, and one
// import stack per (pipeline, external artifact-source account) pair. Every
// descriptor is probed independently to decide CREATE vs UPDATE.
func (b *Builder) Build(ctx context.Context, auth models.AuthContext, pipelines []models.Pipeline) (*Plan, error) {
	p := &Plan{}

	var targetAccounts []string
	for _, pipeline := range pipelines {
		for _, id := range pipeline.TargetAccountIDs {
			if !slices.Contains(targetAccounts, id) {
				targetAccounts = append(targetAccounts, id)
			}
		}
	}
	slices.Sort(targetAccounts)

	p.Org = &StackDeployment{
		Kind:             KindOrg,
		StackName:        OrgStackName(auth.OrgSlug),
		AccountID:        auth.CICDAccountID,
		Region:           auth.CICDRegion,
		TargetAccountIDs: targetAccounts,
	}
	p.Org.Action = b.probeAction(ctx, p.Org)

	for i := range pipelines {
		pipeline := &pipelines[i]
		d := &StackDeployment{
			Kind:      KindPipeline,
			StackName: PipelineStackName(pipeline.Slug),
			AccountID: auth.CICDAccountID,
			Region:    auth.CICDRegion,
			Pipeline:  pipeline,
		}
		d.Action = b.probeAction(ctx, d)
		p.Pipelines = append(p.Pipelines, d)
	}

	// The CI/CD account always leads the account list; its stack creates
	// the trust provider the deployment roles in every other stack of that
	// account federate against.
	accountIDs := []string{auth.CICDAccountID}
	addAccount := func(id string) {
		if id != "" && !slices.Contains(accountIDs, id) {
			accountIDs = append(accountIDs, id)
		}
	}
	for i := range pipelines {
		for _, stage := range pipelines[i].Stages {
			addAccount(stage.AccountID)
		}
		for _, source := range pipelines[i].ImportSourceAccounts() {
			addAccount(source)
		}
	}

	for _, accountID := range accountIDs {
		d := &StackDeployment{
			Kind:      KindAccount,
			StackName: AccountStackName(auth.OrgSlug),
			AccountID: accountID,
			Region:    auth.CICDRegion,
		}
		d.Action = b.probeAction(ctx, d)
		p.Accounts = append(p.Accounts, d)
	}

	for i := range pipelines {
		pipeline := &pipelines[i]
		for j := range pipeline.Stages {
			stage := &pipeline.Stages[j]
			d := &StackDeployment{
				Kind:      KindStage,
				StackName: StageStackName(pipeline.Slug, stage.Name),
				AccountID: stage.AccountID,
				Region:    stage.Region,
				Pipeline:  pipeline,
				Stage:     stage,
			}
			d.Action = b.probeAction(ctx, d)
			p.Stages = append(p.Stages, d)
		}
	}

	for i := range pipelines {
		pipeline := &pipelines[i]
		for _, source := range pipeline.ImportSourceAccounts() {
			if source == auth.CICDAccountID {
				continue
			}
			d := &StackDeployment{
				Kind:            KindImport,
				StackName:       ImportStackName(pipeline.Slug, source),
				AccountID:       source,
				Region:          auth.CICDRegion,
				Pipeline:        pipeline,
				SourceAccountID: source,
			}
			d.Action = b.probeAction(ctx, d)
			p.Imports = append(p.Imports, d)
		}
	}

	return p, nil
}

// probeAction decides CREATE vs UPDATE from the stack's current status. A
// probe failure degrades to CREATE rather than aborting planning: blocking a
// first-time bootstrap is worse than a wrongly chosen CREATE, which surfaces
// as a clear provider error at deploy time.
func (b *Builder) probeAction(ctx context.Context, d *StackDeployment) Action {
	logger := zerolog.Ctx(ctx)

	status, err := b.statuses.Status(ctx, d.AccountID, d.Region, d.StackName)
	if err != nil {
		logger.Warn().
			Err(err).
			Str("stack_name", d.StackName).
			Str("account_id", d.AccountID).
			Str("region", d.Region).
			Msg("Stack status probe failed during planning; defaulting to CREATE")
		return ActionCreate
	}
	if status.Exists {
		return ActionUpdate
	}
	return ActionCreate
}

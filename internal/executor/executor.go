// Package executor deploys every stack in a plan with bounded phases: all
// account stacks first, then everything else concurrently. Failures are
// isolated per stack; one account's misconfiguration never blocks the other
// accounts in its phase.
package executor

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Dev-Ramps/DevRamps-CLI/internal/errors"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/merge"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/plan"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/progress"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/stack"
)

// TemplateSource produces the template document for a stack deployment.
// Template content is opaque to the engine; data carries a merge strategy's
// reconciled result when one applies.
type TemplateSource interface {
	Template(ctx context.Context, d *plan.StackDeployment, data any) ([]byte, error)
}

// AllowedAccountsParameterKey is the template parameter the reconciled
// artifact-bucket allow-list is handed through.
const AllowedAccountsParameterKey = "AllowedAccountIds"

// Result aggregates every per-stack outcome of a run.
type Result struct {
	Outcomes  []stack.Outcome `json:"outcomes"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Success   bool            `json:"success"`
}

// Executor runs the phased deployment of a plan.
type Executor struct {
	clients      Clients
	templates    TemplateSource
	registry     *merge.Registry
	sink         progress.Sink
	stager       *stack.Stager
	pollInterval time.Duration
	timeout      time.Duration
}

type Option func(*Executor)

func WithSink(sink progress.Sink) Option {
	return func(e *Executor) { e.sink = sink }
}

func WithStager(stager *stack.Stager) Option {
	return func(e *Executor) { e.stager = stager }
}

func WithPollInterval(interval time.Duration) Option {
	return func(e *Executor) { e.pollInterval = interval }
}

func WithTimeout(timeout time.Duration) Option {
	return func(e *Executor) { e.timeout = timeout }
}

func New(clients Clients, templates TemplateSource, registry *merge.Registry, opts ...Option) *Executor {
	e := &Executor{
		clients:      clients,
		templates:    templates,
		registry:     registry,
		sink:         progress.NullSink{},
		pollInterval: stack.DefaultPollInterval,
		timeout:      stack.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute deploys the plan. Phase 1 deploys every account stack concurrently
// and waits for all of them; if any fails the run aborts before phase 2,
// since the remaining stacks would create roles referencing a trust provider
// that does not exist. Phase 2 deploys the org, pipeline, stage, and import
// stacks concurrently with failures isolated per stack.
func (e *Executor) Execute(ctx context.Context, mc *merge.Context, p *plan.Plan) (result *Result, err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Interface("error", err).
			Int("stack_count", p.Size()).
			Dur("duration", time.Since(begin)).
			Msg("Plan execution completed")
	}(time.Now())

	phase1 := e.runPhase(ctx, mc, p.Accounts)
	if failed(phase1) > 0 {
		logger.Error().
			Int("failed", failed(phase1)).
			Msg("Account stack phase failed; aborting before dependent stacks")
		return aggregate(phase1), nil
	}

	phase2 := e.runPhase(ctx, mc, p.Phase2())
	return aggregate(append(phase1, phase2...)), nil
}

// runPhase deploys all stacks concurrently and waits for every one of them.
// Each task writes only its own outcome slot; no task's failure cancels its
// siblings.
func (e *Executor) runPhase(ctx context.Context, mc *merge.Context, stacks []*plan.StackDeployment) []stack.Outcome {
	outcomes := make([]stack.Outcome, len(stacks))

	var g errgroup.Group
	for i, d := range stacks {
		g.Go(func() error {
			outcomes[i] = e.deployOne(ctx, mc, d)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (e *Executor) deployOne(ctx context.Context, mc *merge.Context, d *plan.StackDeployment) stack.Outcome {
	logger := zerolog.Ctx(ctx).With().
		Str("stack_name", d.StackName).
		Str("account_id", d.AccountID).
		Str("region", d.Region).
		Logger()
	ctx = logger.WithContext(ctx)

	api, err := e.clients.Client(ctx, d.AccountID, d.Region)
	if err != nil {
		return failedOutcome(d, err)
	}

	params := map[string]string{}
	var mergeData any
	if d.Kind == plan.KindOrg {
		if strategy, ok := e.registry.Get(merge.BucketPolicyStrategyID); ok {
			merged, err := e.reconcile(ctx, api, strategy, mc, d)
			if err != nil {
				return failedOutcome(d, err)
			}
			mergeData = merged
			if list, ok := merged.(*merge.AccountList); ok {
				params[AllowedAccountsParameterKey] = strings.Join(list.AllowedAccountIDs, ",")
			}
		}
	}

	body, err := e.templates.Template(ctx, d, mergeData)
	if err != nil {
		return failedOutcome(d, err)
	}

	deployer := stack.NewDeployer(api,
		stack.WithSink(e.sink),
		stack.WithStager(e.stager),
		stack.WithPollInterval(e.pollInterval),
		stack.WithTimeout(e.timeout),
	)
	outcome, err := deployer.Deploy(ctx, stack.Request{
		StackName:    d.StackName,
		AccountID:    d.AccountID,
		Region:       d.Region,
		TemplateBody: body,
		Parameters:   params,
	})
	if outcome != nil {
		return *outcome
	}
	return failedOutcome(d, err)
}

// reconcile runs a merge strategy against the stack's own deployed state
// immediately before template generation, so the reconciled result rather
// than the freshly computed one is what gets deployed.
func (e *Executor) reconcile(ctx context.Context, api stack.CloudFormationAPI, strategy merge.Strategy, mc *merge.Context, d *plan.StackDeployment) (any, error) {
	logger := zerolog.Ctx(ctx)

	existing, err := stack.DescribeExisting(ctx, api, d.StackName, d.AccountID, d.Region)
	if err != nil {
		// Losing the ability to read old state must never block a new
		// deployment; worst case is a benign full replace.
		logger.Warn().
			Err(err).
			Str("strategy", strategy.ID()).
			Msg("Failed to read existing stack state; merging with new state only")
		existing = nil
	}

	extracted, ok := strategy.ExtractExisting(ctx, existing)
	fresh, err := strategy.CollectNew(ctx, mc)
	if err != nil {
		return nil, err
	}

	merged := strategy.Merge(extracted, ok, fresh)
	validation := strategy.Validate(merged)
	for _, warning := range validation.Warnings {
		logger.Warn().Str("strategy", strategy.ID()).Msg(warning)
	}
	if !validation.Valid {
		return nil, &errors.MergeValidationError{Strategy: strategy.ID(), Errors: validation.Errors}
	}
	return merged, nil
}

// Preview computes the change plan for every stack in the plan without
// applying anything.
func (e *Executor) Preview(ctx context.Context, mc *merge.Context, p *plan.Plan) ([]*stack.ChangePlan, error) {
	var plans []*stack.ChangePlan
	for _, d := range p.All() {
		api, err := e.clients.Client(ctx, d.AccountID, d.Region)
		if err != nil {
			return nil, err
		}

		params := map[string]string{}
		var mergeData any
		if d.Kind == plan.KindOrg {
			if strategy, ok := e.registry.Get(merge.BucketPolicyStrategyID); ok {
				merged, err := e.reconcile(ctx, api, strategy, mc, d)
				if err != nil {
					return nil, err
				}
				mergeData = merged
				if list, ok := merged.(*merge.AccountList); ok {
					params[AllowedAccountsParameterKey] = strings.Join(list.AllowedAccountIDs, ",")
				}
			}
		}

		body, err := e.templates.Template(ctx, d, mergeData)
		if err != nil {
			return nil, err
		}

		deployer := stack.NewDeployer(api,
			stack.WithStager(e.stager),
			stack.WithPollInterval(e.pollInterval),
			stack.WithTimeout(e.timeout),
		)
		changePlan, err := deployer.Preview(ctx, stack.Request{
			StackName:    d.StackName,
			AccountID:    d.AccountID,
			Region:       d.Region,
			TemplateBody: body,
			Parameters:   params,
		})
		if err != nil {
			return nil, err
		}
		plans = append(plans, changePlan)
	}
	return plans, nil
}

func failedOutcome(d *plan.StackDeployment, err error) stack.Outcome {
	return stack.Outcome{
		StackName:     d.StackName,
		AccountID:     d.AccountID,
		Region:        d.Region,
		Operation:     string(d.Action),
		Success:       false,
		FailureReason: err.Error(),
	}
}

func failed(outcomes []stack.Outcome) int {
	count := 0
	for i := range outcomes {
		if !outcomes[i].Success {
			count++
		}
	}
	return count
}

func aggregate(outcomes []stack.Outcome) *Result {
	result := &Result{Outcomes: outcomes}
	for i := range outcomes {
		if outcomes[i].Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	result.Success = result.Failed == 0
	return result
}

// Package plan derives the full set of stack deployments a bootstrap run
// must perform from parsed pipeline data and the authenticated CI/CD account
// context.
package plan

import (
	"github.com/Dev-Ramps/DevRamps-CLI/internal/models"
)

type StackKind string

const (
	KindOrg      StackKind = "org"
	KindPipeline StackKind = "pipeline"
	KindAccount  StackKind = "account"
	KindStage    StackKind = "stage"
	KindImport   StackKind = "import"
)

type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
)

// StackDeployment describes one stack the run must converge. Instances are
// created once during planning and immutable afterwards.
type StackDeployment struct {
	Kind      StackKind `json:"kind"`
	StackName string    `json:"stack_name"`
	AccountID string    `json:"account_id"`
	Region    string    `json:"region"`
	Action    Action    `json:"action"`

	// Kind-specific payloads.
	TargetAccountIDs []string         `json:"target_account_ids,omitempty"` // org: trust scope
	Pipeline         *models.Pipeline `json:"pipeline,omitempty"`           // pipeline, stage, import
	Stage            *models.Stage    `json:"stage,omitempty"`              // stage
	SourceAccountID  string           `json:"source_account_id,omitempty"`  // import
}

// Plan is the aggregate set of stack deployments for one run. Accounts is
// ordered with the CI/CD account first; it hosts the trust provider every
// other stack's deployment role federates against.
type Plan struct {
	Org       *StackDeployment   `json:"org"`
	Pipelines []*StackDeployment `json:"pipelines"`
	Accounts  []*StackDeployment `json:"accounts"`
	Stages    []*StackDeployment `json:"stages"`
	Imports   []*StackDeployment `json:"imports"`
}

// All returns every deployment in the plan: accounts first, then the org,
// pipeline, stage, and import stacks.
func (p *Plan) All() []*StackDeployment {
	out := make([]*StackDeployment, 0, p.Size())
	out = append(out, p.Accounts...)
	out = append(out, p.Org)
	out = append(out, p.Pipelines...)
	out = append(out, p.Stages...)
	out = append(out, p.Imports...)
	return out
}

// Phase2 returns the deployments that run after every account stack has
// completed.
func (p *Plan) Phase2() []*StackDeployment {
	out := make([]*StackDeployment, 0, p.Size()-len(p.Accounts))
	out = append(out, p.Org)
	out = append(out, p.Pipelines...)
	out = append(out, p.Stages...)
	out = append(out, p.Imports...)
	return out
}

func (p *Plan) Size() int {
	return 1 + len(p.Pipelines) + len(p.Accounts) + len(p.Stages) + len(p.Imports)
}

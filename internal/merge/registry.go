// Package merge reconciles previously-deployed resource state with newly
// computed desired state. Each strategy owns one managed resource whose
// desired state must union with what earlier runs deployed instead of being
// replaced by the latest snapshot alone.
package merge

import (
	"context"

	"github.com/Dev-Ramps/DevRamps-CLI/internal/models"
)

// Context is the read-only input handed to strategies when collecting newly
// desired state.
type Context struct {
	OrgSlug       string
	CICDAccountID string
	CICDRegion    string
	Pipelines     []models.Pipeline
}

// ExistingStack is a snapshot of a previously deployed stack, or nil when the
// stack does not exist.
type ExistingStack struct {
	StackName string
	AccountID string
	Region    string
	Resources map[string]Resource
	Outputs   map[string]string
}

// Resource describes one deployed resource, keyed by logical id in
// ExistingStack.Resources.
type Resource struct {
	Type       string
	PhysicalID string
	Status     string
}

// Validation is the outcome of checking a merged result before it is handed
// to template generation. Warnings do not block deployment.
type Validation struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Strategy reconciles existing and newly desired state for one managed
// resource.
//
// ExtractExisting must not fail on an absent stack or a resource that has no
// prior state; both report ok=false. Merge must be pure; merging with
// ok=false degenerates to processing the new state alone.
type Strategy interface {
	ID() string
	ExtractExisting(ctx context.Context, existing *ExistingStack) (any, bool)
	CollectNew(ctx context.Context, mc *Context) (any, error)
	Merge(existing any, ok bool, fresh any) any
	Validate(result any) Validation
}

// Registry is a caller-owned set of merge strategies. It is not safe for
// concurrent registration; register everything up front, then share.
type Registry struct {
	strategies map[string]Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: map[string]Strategy{}}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

func (r *Registry) Register(s Strategy) {
	r.strategies[s.ID()] = s
}

func (r *Registry) Get(id string) (Strategy, bool) {
	s, ok := r.strategies[id]
	return s, ok
}

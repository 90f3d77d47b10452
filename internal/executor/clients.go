package executor

import (
	"context"
	"fmt"

	"github.com/Dev-Ramps/DevRamps-CLI/internal/credentials"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/stack"
)

// Clients supplies a CloudFormation client scoped to a target account and
// region. Each call resolves its own short-lived credentials; nothing is
// cached across deployment operations.
type Clients interface {
	Client(ctx context.Context, accountID, region string) (stack.CloudFormationAPI, error)
}

// ClientFactory builds a regional CloudFormation client from resolved
// credentials.
type ClientFactory func(creds *credentials.Assumed, region string) stack.CloudFormationAPI

// AccountClients resolves cross-account credentials and builds per-account
// clients. It also serves as the plan builder's status source.
type AccountClients struct {
	resolver      *credentials.Resolver
	factory       ClientFactory
	cicdAccountID string
}

func NewAccountClients(resolver *credentials.Resolver, factory ClientFactory, cicdAccountID string) *AccountClients {
	return &AccountClients{
		resolver:      resolver,
		factory:       factory,
		cicdAccountID: cicdAccountID,
	}
}

func (c *AccountClients) Client(ctx context.Context, accountID, region string) (stack.CloudFormationAPI, error) {
	creds, err := c.resolver.Resolve(ctx, accountID, c.cicdAccountID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credentials for account %s: %w", accountID, err)
	}
	return c.factory(creds, region), nil
}

// Status probes a stack in a target account, resolving credentials first.
func (c *AccountClients) Status(ctx context.Context, accountID, region, stackName string) (*stack.Status, error) {
	api, err := c.Client(ctx, accountID, region)
	if err != nil {
		return nil, err
	}
	return stack.Probe(ctx, api, stackName)
}

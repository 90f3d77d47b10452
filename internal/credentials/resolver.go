// Package credentials exchanges target account identifiers for short-lived
// cross-account credentials via STS role assumption.
package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscredentials "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/Dev-Ramps/DevRamps-CLI/internal/errors"
)

// Role names tried when no explicit role is requested, in order. The deployer
// role is created by a previous bootstrap run; the organization access role
// exists in accounts created through AWS Organizations and covers first-time
// bootstraps.
const (
	DeployerRoleName  = "DevRampsDeployerRole"
	BootstrapRoleName = "OrganizationAccountAccessRole"

	sessionNamePrefix = "devramps-deploy"
	sessionDuration   = 3600 * time.Second
)

// STSAPI is the subset of the STS client used by the resolver.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

var _ STSAPI = (*sts.Client)(nil)

// Assumed holds credentials resolved for one deployment operation. It is
// owned by the caller that requested it and must not be cached beyond that
// operation; sessions expire after roughly one hour.
type Assumed struct {
	UseAmbient      bool
	AccountID       string
	RoleArn         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// Ambient returns the sentinel meaning "use the caller's own credentials".
func Ambient(accountID string) *Assumed {
	return &Assumed{UseAmbient: true, AccountID: accountID}
}

// Provider returns a credentials provider for AWS clients. For the ambient
// sentinel the supplied default provider is returned unchanged.
func (a *Assumed) Provider(ambient aws.CredentialsProvider) aws.CredentialsProvider {
	if a.UseAmbient {
		return ambient
	}
	return awscredentials.NewStaticCredentialsProvider(a.AccessKeyID, a.SecretAccessKey, a.SessionToken)
}

// Resolver exchanges account identifiers for cross-account credentials.
type Resolver struct {
	client STSAPI
}

func NewResolver(client STSAPI) *Resolver {
	return &Resolver{client: client}
}

// CallerAccountID returns the account id of the ambient identity.
func (r *Resolver) CallerAccountID(ctx context.Context) (string, error) {
	result, err := r.client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrCredentialsUnavailable, err)
	}
	if result.Account == nil {
		return "", fmt.Errorf("%w: caller identity has no account", errors.ErrCredentialsUnavailable)
	}
	return *result.Account, nil
}

// Resolve obtains credentials for targetAccountID. If the target is the
// current account the ambient sentinel is returned and no call is made.
// Otherwise candidate roles are tried in order; the first success wins. When
// preferredRole is set only that role is tried, with no fallback. No retry is
// attempted on transient errors; the caller may retry the whole operation.
func (r *Resolver) Resolve(ctx context.Context, targetAccountID, currentAccountID, preferredRole string) (*Assumed, error) {
	logger := zerolog.Ctx(ctx)

	if targetAccountID == currentAccountID {
		return Ambient(targetAccountID), nil
	}

	roles := []string{DeployerRoleName, BootstrapRoleName}
	if preferredRole != "" {
		roles = []string{preferredRole}
	}

	sessionName := fmt.Sprintf("%s-%s", sessionNamePrefix, ksuid.New().String())
	for _, role := range roles {
		roleArn := fmt.Sprintf("arn:aws:iam::%s:role/%s", targetAccountID, role)
		result, err := r.client.AssumeRole(ctx, &sts.AssumeRoleInput{
			RoleArn:         aws.String(roleArn),
			RoleSessionName: aws.String(sessionName),
			DurationSeconds: aws.Int32(int32(sessionDuration.Seconds())),
		})
		if err != nil {
			logger.Debug().
				Err(err).
				Str("role_arn", roleArn).
				Str("target_account_id", targetAccountID).
				Msg("Role assumption attempt failed")
			continue
		}

		creds := result.Credentials
		if creds == nil {
			logger.Debug().
				Str("role_arn", roleArn).
				Msg("Role assumption returned no credentials")
			continue
		}

		logger.Debug().
			Str("role_arn", roleArn).
			Str("target_account_id", targetAccountID).
			Msg("Assumed role")

		assumed := &Assumed{
			AccountID:       targetAccountID,
			RoleArn:         roleArn,
			AccessKeyID:     aws.ToString(creds.AccessKeyId),
			SecretAccessKey: aws.ToString(creds.SecretAccessKey),
			SessionToken:    aws.ToString(creds.SessionToken),
		}
		if creds.Expiration != nil {
			assumed.Expiration = *creds.Expiration
		}
		return assumed, nil
	}

	return nil, &errors.RoleAssumptionError{
		TargetAccountID:  targetAccountID,
		CurrentAccountID: currentAccountID,
		AttemptedRoles:   roles,
	}
}

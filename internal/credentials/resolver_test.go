package credentials

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	deperrors "github.com/Dev-Ramps/DevRamps-CLI/internal/errors"
)

type fakeSTS struct {
	account   string
	failArns  map[string]bool
	attempted []string
}

func (f *fakeSTS) AssumeRole(_ context.Context, params *sts.AssumeRoleInput, _ ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	arn := aws.ToString(params.RoleArn)
	f.attempted = append(f.attempted, arn)
	if f.failArns[arn] {
		return nil, fmt.Errorf("AccessDenied: not authorized to assume %s", arn)
	}
	expiration := time.Now().Add(time.Hour)
	return &sts.AssumeRoleOutput{
		Credentials: &types.Credentials{
			AccessKeyId:     aws.String("AKIDEXAMPLE"),
			SecretAccessKey: aws.String("secret"),
			SessionToken:    aws.String("token"),
			Expiration:      &expiration,
		},
	}, nil
}

func (f *fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.account == "" {
		return nil, fmt.Errorf("ExpiredToken: token expired")
	}
	return &sts.GetCallerIdentityOutput{Account: aws.String(f.account)}, nil
}

func TestResolveSameAccount(t *testing.T) {
	client := &fakeSTS{}
	resolver := NewResolver(client)

	assumed, err := resolver.Resolve(context.Background(), "123456789012", "123456789012", "")
	require.NoError(t, err)
	assert.True(t, assumed.UseAmbient)
	assert.Equal(t, "123456789012", assumed.AccountID)
	assert.Empty(t, client.attempted, "no role assumption call should be made")
}

func TestResolveDefaultRoleOrder(t *testing.T) {
	t.Run("deployer role wins first", func(t *testing.T) {
		client := &fakeSTS{}
		resolver := NewResolver(client)

		assumed, err := resolver.Resolve(context.Background(), "222222222222", "111111111111", "")
		require.NoError(t, err)
		assert.False(t, assumed.UseAmbient)
		assert.Equal(t, "arn:aws:iam::222222222222:role/"+DeployerRoleName, assumed.RoleArn)
		assert.Len(t, client.attempted, 1)
	})

	t.Run("falls back to bootstrap role", func(t *testing.T) {
		client := &fakeSTS{failArns: map[string]bool{
			"arn:aws:iam::222222222222:role/" + DeployerRoleName: true,
		}}
		resolver := NewResolver(client)

		assumed, err := resolver.Resolve(context.Background(), "222222222222", "111111111111", "")
		require.NoError(t, err)
		assert.Equal(t, "arn:aws:iam::222222222222:role/"+BootstrapRoleName, assumed.RoleArn)
		assert.Equal(t, []string{
			"arn:aws:iam::222222222222:role/" + DeployerRoleName,
			"arn:aws:iam::222222222222:role/" + BootstrapRoleName,
		}, client.attempted)
	})
}

func TestResolvePreferredRoleDoesNotFallBack(t *testing.T) {
	client := &fakeSTS{failArns: map[string]bool{
		"arn:aws:iam::222222222222:role/CustomRole": true,
	}}
	resolver := NewResolver(client)

	_, err := resolver.Resolve(context.Background(), "222222222222", "111111111111", "CustomRole")
	require.Error(t, err)
	assert.Len(t, client.attempted, 1, "an explicitly requested role must not fall back")

	var assumptionErr *deperrors.RoleAssumptionError
	require.ErrorAs(t, err, &assumptionErr)
	assert.Equal(t, "222222222222", assumptionErr.TargetAccountID)
	assert.Equal(t, "111111111111", assumptionErr.CurrentAccountID)
	assert.Equal(t, []string{"CustomRole"}, assumptionErr.AttemptedRoles)
}

func TestResolveAllRolesFail(t *testing.T) {
	client := &fakeSTS{failArns: map[string]bool{
		"arn:aws:iam::222222222222:role/" + DeployerRoleName:  true,
		"arn:aws:iam::222222222222:role/" + BootstrapRoleName: true,
	}}
	resolver := NewResolver(client)

	_, err := resolver.Resolve(context.Background(), "222222222222", "111111111111", "")
	var assumptionErr *deperrors.RoleAssumptionError
	require.ErrorAs(t, err, &assumptionErr)
	assert.Equal(t, []string{DeployerRoleName, BootstrapRoleName}, assumptionErr.AttemptedRoles)
}

func TestCallerAccountID(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		resolver := NewResolver(&fakeSTS{account: "123456789012"})
		account, err := resolver.CallerAccountID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "123456789012", account)
	})

	t.Run("failure wraps sentinel", func(t *testing.T) {
		resolver := NewResolver(&fakeSTS{})
		_, err := resolver.CallerAccountID(context.Background())
		assert.ErrorIs(t, err, deperrors.ErrCredentialsUnavailable)
	})
}

func TestAssumedProvider(t *testing.T) {
	ambient := aws.AnonymousCredentials{}

	t.Run("ambient sentinel returns the default provider", func(t *testing.T) {
		assert.Equal(t, aws.CredentialsProvider(ambient), Ambient("123456789012").Provider(ambient))
	})

	t.Run("assumed credentials build a static provider", func(t *testing.T) {
		assumed := &Assumed{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret", SessionToken: "token"}
		creds, err := assumed.Provider(ambient).Retrieve(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "AKIDEXAMPLE", creds.AccessKeyID)
		assert.Equal(t, "token", creds.SessionToken)
	})
}

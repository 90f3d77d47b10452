package plan

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dev-Ramps/DevRamps-CLI/internal/models"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/stack"
)

type fakeStatuses struct {
	mu       sync.Mutex
	existing map[string]bool // "accountID/region/stackName"
	failing  map[string]bool
	probed   []string
}

func (f *fakeStatuses) Status(_ context.Context, accountID, region, stackName string) (*stack.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := fmt.Sprintf("%s/%s/%s", accountID, region, stackName)
	f.probed = append(f.probed, key)
	if f.failing[key] {
		return nil, fmt.Errorf("unable to assume role in account %s", accountID)
	}
	return &stack.Status{Exists: f.existing[key]}, nil
}

func testAuth() models.AuthContext {
	return models.AuthContext{
		OrgSlug:       "acme",
		CICDAccountID: "111111111111",
		CICDRegion:    "us-east-1",
	}
}

func testPipelines() []models.Pipeline {
	return []models.Pipeline{
		{
			Slug:             "api",
			TargetAccountIDs: []string{"222222222222", "333333333333"},
			Stages: []models.Stage{
				{Name: "staging", AccountID: "222222222222", Region: "us-east-1"},
				{Name: "production", AccountID: "333333333333", Region: "us-west-2"},
			},
			Artifacts: models.Artifacts{
				Docker: []models.Artifact{
					{Name: "base-image", AccountID: "444444444444"},
					{Name: "local-image"},
				},
			},
		},
		{
			Slug:             "web",
			TargetAccountIDs: []string{"222222222222"},
			Stages: []models.Stage{
				{Name: "production", AccountID: "222222222222", Region: "us-east-1"},
			},
		},
	}
}

func TestBuild(t *testing.T) {
	statuses := &fakeStatuses{existing: map[string]bool{}}
	builder := NewBuilder(statuses)

	p, err := builder.Build(context.Background(), testAuth(), testPipelines())
	require.NoError(t, err)

	t.Run("org stack targets the union of account ids", func(t *testing.T) {
		require.NotNil(t, p.Org)
		assert.Equal(t, "devramps-acme", p.Org.StackName)
		assert.Equal(t, "111111111111", p.Org.AccountID)
		assert.Equal(t, []string{"222222222222", "333333333333"}, p.Org.TargetAccountIDs)
	})

	t.Run("one pipeline stack per pipeline in the cicd account", func(t *testing.T) {
		require.Len(t, p.Pipelines, 2)
		assert.Equal(t, "devramps-pipeline-api", p.Pipelines[0].StackName)
		assert.Equal(t, "devramps-pipeline-web", p.Pipelines[1].StackName)
		for _, d := range p.Pipelines {
			assert.Equal(t, "111111111111", d.AccountID)
			assert.Equal(t, "us-east-1", d.Region)
		}
	})

	t.Run("account stack for every touched account, cicd first", func(t *testing.T) {
		var accounts []string
		for _, d := range p.Accounts {
			assert.Equal(t, "devramps-account-acme", d.StackName)
			accounts = append(accounts, d.AccountID)
		}
		require.NotEmpty(t, accounts)
		assert.Equal(t, "111111111111", accounts[0])
		assert.ElementsMatch(t, []string{"111111111111", "222222222222", "333333333333", "444444444444"}, accounts)
	})

	t.Run("stage stacks carry the stage account and region", func(t *testing.T) {
		require.Len(t, p.Stages, 3)
		assert.Equal(t, "devramps-stage-api-production", p.Stages[1].StackName)
		assert.Equal(t, "333333333333", p.Stages[1].AccountID)
		assert.Equal(t, "us-west-2", p.Stages[1].Region)
	})

	t.Run("import stack per external artifact source", func(t *testing.T) {
		require.Len(t, p.Imports, 1)
		assert.Equal(t, "devramps-import-api-444444444444", p.Imports[0].StackName)
		assert.Equal(t, "444444444444", p.Imports[0].AccountID)
		assert.Equal(t, "444444444444", p.Imports[0].SourceAccountID)
	})

	t.Run("all stacks default to create when nothing exists", func(t *testing.T) {
		for _, d := range p.All() {
			assert.Equal(t, ActionCreate, d.Action, d.StackName)
		}
	})

	t.Run("size matches the enumerated deployments", func(t *testing.T) {
		assert.Equal(t, p.Size(), len(p.All()))
		assert.Equal(t, p.Size()-len(p.Accounts), len(p.Phase2()))
	})
}

func TestBuildMarksExistingStacksForUpdate(t *testing.T) {
	statuses := &fakeStatuses{
		existing: map[string]bool{
			"111111111111/us-east-1/devramps-acme":         true,
			"222222222222/us-east-1/devramps-account-acme": true,
		},
	}

	p, err := NewBuilder(statuses).Build(context.Background(), testAuth(), testPipelines())
	require.NoError(t, err)

	assert.Equal(t, ActionUpdate, p.Org.Action)
	for _, d := range p.Accounts {
		want := ActionCreate
		if d.AccountID == "222222222222" {
			want = ActionUpdate
		}
		assert.Equal(t, want, d.Action, d.AccountID)
	}
	for _, d := range p.Pipelines {
		assert.Equal(t, ActionCreate, d.Action)
	}
}

func TestBuildProbeFailureDefaultsToCreate(t *testing.T) {
	statuses := &fakeStatuses{
		existing: map[string]bool{},
		failing: map[string]bool{
			"444444444444/us-east-1/devramps-account-acme": true,
		},
	}

	p, err := NewBuilder(statuses).Build(context.Background(), testAuth(), testPipelines())
	require.NoError(t, err, "a failed probe must not abort planning")

	for _, d := range p.Accounts {
		if d.AccountID == "444444444444" {
			assert.Equal(t, ActionCreate, d.Action)
		}
	}
}

func TestBuildSkipsImportFromCICDAccount(t *testing.T) {
	pipelines := []models.Pipeline{
		{
			Slug:             "api",
			TargetAccountIDs: []string{"222222222222"},
			Stages: []models.Stage{
				{Name: "production", AccountID: "222222222222", Region: "us-east-1"},
			},
			Artifacts: models.Artifacts{
				Bundle: []models.Artifact{
					{Name: "shared", AccountID: "111111111111"},
				},
			},
		},
	}

	p, err := NewBuilder(&fakeStatuses{existing: map[string]bool{}}).Build(context.Background(), testAuth(), pipelines)
	require.NoError(t, err)
	assert.Empty(t, p.Imports, "artifacts already in the cicd account need no import stack")
}

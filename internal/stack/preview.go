package stack

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/Dev-Ramps/DevRamps-CLI/internal/errors"
)

// ResourceChange is one prospective resource-level action from a change-set
// preview.
type ResourceChange struct {
	Action       string `json:"action"` // Add, Modify, Remove, Import
	LogicalID    string `json:"logical_id"`
	ResourceType string `json:"resource_type"`
	Replacement  string `json:"replacement,omitempty"`
}

// ChangePlan is the dry-run result for one stack. Create=true means the
// stack does not exist yet and the whole template would be created.
type ChangePlan struct {
	StackName string           `json:"stack_name"`
	AccountID string           `json:"account_id"`
	Region    string           `json:"region"`
	Create    bool             `json:"create"`
	Changes   []ResourceChange `json:"changes,omitempty"`
}

// Preview computes the prospective changes a deployment of req would make,
// without applying anything. For an existing stack a change set is created,
// enumerated, and always discarded best-effort afterwards. For a missing
// stack the change set is skipped entirely: a CREATE-type change set leaves
// the stack in REVIEW_IN_PROGRESS, which would block the real deployment.
func (d *Deployer) Preview(ctx context.Context, req Request) (*ChangePlan, error) {
	logger := zerolog.Ctx(ctx)

	status, err := Probe(ctx, d.api, req.StackName)
	if err != nil {
		return nil, fmt.Errorf("failed to probe stack %s: %w", req.StackName, err)
	}

	plan := &ChangePlan{
		StackName: req.StackName,
		AccountID: req.AccountID,
		Region:    req.Region,
	}

	if !status.Exists || status.StackStatus == types.StackStatusRollbackComplete {
		plan.Create = true
		return plan, nil
	}

	body, templateURL, err := d.stageTemplate(ctx, req)
	if err != nil {
		return nil, err
	}

	changeSetName := "devramps-preview-" + ksuid.New().String()
	_, err = d.api.CreateChangeSet(ctx, &cloudformation.CreateChangeSetInput{
		StackName:     aws.String(req.StackName),
		ChangeSetName: aws.String(changeSetName),
		ChangeSetType: types.ChangeSetTypeUpdate,
		TemplateBody:  body,
		TemplateURL:   templateURL,
		Parameters:    Parameters(req.Parameters),
		Capabilities: []types.Capability{
			types.CapabilityCapabilityIam,
			types.CapabilityCapabilityNamedIam,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create change set for stack %s: %w", req.StackName, err)
	}

	defer func() {
		// Cleanup is best effort; a leaked change set never masks the
		// preview result.
		_, err := d.api.DeleteChangeSet(ctx, &cloudformation.DeleteChangeSetInput{
			StackName:     aws.String(req.StackName),
			ChangeSetName: aws.String(changeSetName),
		})
		if err != nil {
			logger.Debug().
				Err(err).
				Str("stack_name", req.StackName).
				Str("change_set", changeSetName).
				Msg("Failed to delete change set")
		}
	}()

	changes, err := d.awaitChangeSet(ctx, req, changeSetName)
	if err != nil {
		return nil, err
	}
	plan.Changes = changes
	return plan, nil
}

func (d *Deployer) awaitChangeSet(ctx context.Context, req Request, changeSetName string) ([]ResourceChange, error) {
	began := time.Now()
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		result, err := d.api.DescribeChangeSet(ctx, &cloudformation.DescribeChangeSetInput{
			StackName:     aws.String(req.StackName),
			ChangeSetName: aws.String(changeSetName),
		})
		if err != nil {
			var apiErr smithy.APIError
			if stderrors.As(err, &apiErr) && apiErr.ErrorCode() == "ChangeSetNotFound" {
				continue
			}
			return nil, fmt.Errorf("failed to describe change set %s: %w", changeSetName, err)
		}

		switch result.Status {
		case types.ChangeSetStatusCreateComplete:
			var changes []ResourceChange
			for _, change := range result.Changes {
				rc := change.ResourceChange
				if rc == nil {
					continue
				}
				changes = append(changes, ResourceChange{
					Action:       string(rc.Action),
					LogicalID:    aws.ToString(rc.LogicalResourceId),
					ResourceType: aws.ToString(rc.ResourceType),
					Replacement:  string(rc.Replacement),
				})
			}
			return changes, nil

		case types.ChangeSetStatusFailed:
			reason := aws.ToString(result.StatusReason)
			if strings.Contains(reason, "didn't contain changes") || strings.Contains(reason, "No updates") {
				return nil, nil
			}
			return nil, &errors.StackOperationError{
				StackName: req.StackName,
				AccountID: req.AccountID,
				Region:    req.Region,
				Status:    string(types.ChangeSetStatusFailed),
				Reason:    reason,
			}
		}

		if time.Since(began) > d.timeout {
			return nil, &errors.StackTimeoutError{
				StackName: req.StackName,
				AccountID: req.AccountID,
				Region:    req.Region,
				Elapsed:   time.Since(began).Round(time.Second),
			}
		}
	}
}

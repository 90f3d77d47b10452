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

	"github.com/Dev-Ramps/DevRamps-CLI/internal/errors"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/progress"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultTimeout      = 600 * time.Second
)

// Request describes a single stack deployment.
type Request struct {
	StackName    string
	AccountID    string
	Region       string
	TemplateBody []byte
	Parameters   map[string]string
}

// Outcome is the terminal result of one stack deployment. It is created once
// on the terminal transition and never mutated afterwards.
type Outcome struct {
	StackName          string `json:"stack_name"`
	AccountID          string `json:"account_id"`
	Region             string `json:"region"`
	Operation          string `json:"operation"` // CREATE, UPDATE, or NONE
	Success            bool   `json:"success"`
	FailureReason      string `json:"failure_reason,omitempty"`
	CompletedResources int    `json:"completed_resources"`
	ElapsedSeconds     int    `json:"elapsed_seconds"`
}

var successStatuses = map[types.StackStatus]bool{
	types.StackStatusCreateComplete: true,
	types.StackStatusUpdateComplete: true,
}

var failureStatuses = map[types.StackStatus]bool{
	types.StackStatusCreateFailed:           true,
	types.StackStatusUpdateFailed:           true,
	types.StackStatusDeleteFailed:           true,
	types.StackStatusDeleteComplete:         true,
	types.StackStatusRollbackFailed:         true,
	types.StackStatusRollbackComplete:       true,
	types.StackStatusUpdateRollbackFailed:   true,
	types.StackStatusUpdateRollbackComplete: true,
}

// Deployer drives one stack at a time through create-or-update, completion
// polling, and rollback recovery. It is safe to share across goroutines as
// long as each Deploy call targets a distinct stack.
type Deployer struct {
	api          CloudFormationAPI
	stager       *Stager
	sink         progress.Sink
	pollInterval time.Duration
	timeout      time.Duration
}

type Option func(*Deployer)

func WithPollInterval(interval time.Duration) Option {
	return func(d *Deployer) { d.pollInterval = interval }
}

func WithTimeout(timeout time.Duration) Option {
	return func(d *Deployer) { d.timeout = timeout }
}

// WithStager enables S3 staging for templates too large to submit inline.
func WithStager(stager *Stager) Option {
	return func(d *Deployer) { d.stager = stager }
}

func WithSink(sink progress.Sink) Option {
	return func(d *Deployer) { d.sink = sink }
}

func NewDeployer(api CloudFormationAPI, opts ...Option) *Deployer {
	d := &Deployer{
		api:          api,
		sink:         progress.NullSink{},
		pollInterval: DefaultPollInterval,
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deploy runs the full deployment state machine for one stack: decide CREATE
// vs UPDATE vs delete-then-create, submit, poll to a terminal status, and
// classify the result. The returned error, when non-nil, is a
// *errors.StackOperationError or *errors.StackTimeoutError for terminal
// failures, and the Outcome is still populated.
func (d *Deployer) Deploy(ctx context.Context, req Request) (outcome *Outcome, err error) {
	logger := zerolog.Ctx(ctx)
	began := time.Now()

	defer func(begin time.Time) {
		logger.Info().
			Interface("error", err).
			Str("stack_name", req.StackName).
			Str("account_id", req.AccountID).
			Str("region", req.Region).
			Dur("duration", time.Since(begin)).
			Msg("Stack deployment completed")
	}(began)

	status, err := Probe(ctx, d.api, req.StackName)
	if err != nil {
		return nil, fmt.Errorf("failed to probe stack %s: %w", req.StackName, err)
	}

	// A stack stuck in ROLLBACK_COMPLETE after a failed create cannot be
	// updated; it must be deleted before a fresh create.
	if status.Exists && status.StackStatus == types.StackStatusRollbackComplete {
		logger.Warn().
			Str("stack_name", req.StackName).
			Msg("Stack is in ROLLBACK_COMPLETE; deleting before recreate")
		if err := d.deleteAndWait(ctx, req, began); err != nil {
			return nil, err
		}
		status = &Status{Exists: false}
	}

	body, templateURL, err := d.stageTemplate(ctx, req)
	if err != nil {
		return nil, err
	}

	operation := "CREATE"
	if status.Exists {
		operation = "UPDATE"
		noChanges, err := d.submitUpdate(ctx, req, body, templateURL)
		if err != nil {
			return nil, fmt.Errorf("failed to update stack %s: %w", req.StackName, err)
		}
		if noChanges {
			// The provider found nothing to apply. Not an error; the
			// stack already matches the template.
			d.publish(req, "NO_CHANGES", 0, 0, "", "")
			return &Outcome{
				StackName: req.StackName,
				AccountID: req.AccountID,
				Region:    req.Region,
				Operation: "NONE",
				Success:   true,
			}, nil
		}
	} else {
		if err := d.submitCreate(ctx, req, body, templateURL); err != nil {
			return nil, fmt.Errorf("failed to create stack %s: %w", req.StackName, err)
		}
	}

	d.publish(req, "SUBMITTED", 0, 0, "", "")
	return d.poll(ctx, req, operation, began)
}

func (d *Deployer) submitCreate(ctx context.Context, req Request, body, templateURL *string) error {
	_, err := d.api.CreateStack(ctx, &cloudformation.CreateStackInput{
		StackName:    aws.String(req.StackName),
		TemplateBody: body,
		TemplateURL:  templateURL,
		Parameters:   Parameters(req.Parameters),
		Capabilities: []types.Capability{
			types.CapabilityCapabilityIam,
			types.CapabilityCapabilityNamedIam,
		},
		Tags: []types.Tag{
			{
				Key:   aws.String("ManagedBy"),
				Value: aws.String("devramps"),
			},
		},
	})
	return err
}

// submitUpdate returns noChanges=true when the provider reports there is
// nothing to apply.
func (d *Deployer) submitUpdate(ctx context.Context, req Request, body, templateURL *string) (bool, error) {
	_, err := d.api.UpdateStack(ctx, &cloudformation.UpdateStackInput{
		StackName:    aws.String(req.StackName),
		TemplateBody: body,
		TemplateURL:  templateURL,
		Parameters:   Parameters(req.Parameters),
		Capabilities: []types.Capability{
			types.CapabilityCapabilityIam,
			types.CapabilityCapabilityNamedIam,
		},
	})
	if err != nil {
		if isNoUpdatesError(err) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func isNoUpdatesError(err error) bool {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ValidationError" &&
			(strings.Contains(apiErr.ErrorMessage(), "No updates are to be performed") ||
				strings.Contains(apiErr.ErrorMessage(), "No updates to be performed"))
	}
	return false
}

func (d *Deployer) stageTemplate(ctx context.Context, req Request) (body, templateURL *string, err error) {
	if len(req.TemplateBody) <= MaxInlineTemplateBytes {
		return aws.String(string(req.TemplateBody)), nil, nil
	}
	if d.stager == nil {
		return nil, nil, fmt.Errorf("stack %s: %w", req.StackName, errors.ErrStagingBucketRequired)
	}
	url, err := d.stager.Upload(ctx, req.StackName, req.TemplateBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stage template for stack %s: %w", req.StackName, err)
	}
	return nil, aws.String(url), nil
}

func (d *Deployer) poll(ctx context.Context, req Request, operation string, began time.Time) (*Outcome, error) {
	logger := zerolog.Ctx(ctx)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	var (
		completed      = map[string]bool{}
		seen           = map[string]bool{}
		failureReason  string
		latestResource string
	)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		status, err := Probe(ctx, d.api, req.StackName)
		if err != nil {
			// Transient describe failures resolve themselves or end at
			// the timeout, classified as "provider is stuck".
			logger.Warn().Err(err).Str("stack_name", req.StackName).Msg("Failed to poll stack status")
			continue
		}

		events, err := d.eventsSince(ctx, req.StackName, began)
		if err != nil {
			logger.Warn().Err(err).Str("stack_name", req.StackName).Msg("Failed to list stack events")
		}
		for i := range events {
			event := &events[i]
			logical := aws.ToString(event.LogicalResourceId)
			if logical == "" || logical == req.StackName {
				continue
			}
			resourceStatus := string(event.ResourceStatus)
			seen[logical] = true
			if strings.HasSuffix(resourceStatus, "_COMPLETE") && !strings.Contains(resourceStatus, "ROLLBACK") {
				completed[logical] = true
				latestResource = logical
			}
			if strings.Contains(resourceStatus, "FAILED") && event.ResourceStatusReason != nil {
				failureReason = *event.ResourceStatusReason
			}
		}

		overall := string(status.StackStatus)
		if !status.Exists {
			overall = string(types.StackStatusDeleteComplete)
		}
		d.publish(req, overall, len(completed), len(seen), latestResource, failureReason)

		switch {
		case successStatuses[status.StackStatus]:
			return &Outcome{
				StackName:          req.StackName,
				AccountID:          req.AccountID,
				Region:             req.Region,
				Operation:          operation,
				Success:            true,
				CompletedResources: len(completed),
				ElapsedSeconds:     int(time.Since(began).Seconds()),
			}, nil

		case !status.Exists || failureStatuses[status.StackStatus]:
			reason := failureReason
			if reason == "" {
				reason = overall
			}
			outcome := &Outcome{
				StackName:          req.StackName,
				AccountID:          req.AccountID,
				Region:             req.Region,
				Operation:          operation,
				Success:            false,
				FailureReason:      reason,
				CompletedResources: len(completed),
				ElapsedSeconds:     int(time.Since(began).Seconds()),
			}
			return outcome, &errors.StackOperationError{
				StackName: req.StackName,
				AccountID: req.AccountID,
				Region:    req.Region,
				Status:    overall,
				Reason:    failureReason,
			}
		}

		if time.Since(began) > d.timeout {
			timeoutErr := &errors.StackTimeoutError{
				StackName: req.StackName,
				AccountID: req.AccountID,
				Region:    req.Region,
				Elapsed:   time.Since(began).Round(time.Second),
			}
			outcome := &Outcome{
				StackName:          req.StackName,
				AccountID:          req.AccountID,
				Region:             req.Region,
				Operation:          operation,
				Success:            false,
				FailureReason:      timeoutErr.Error(),
				CompletedResources: len(completed),
				ElapsedSeconds:     int(time.Since(began).Seconds()),
			}
			return outcome, timeoutErr
		}
	}
}

// eventsSince returns events newer than the given time in chronological
// order. The provider lists events newest first.
func (d *Deployer) eventsSince(ctx context.Context, stackName string, since time.Time) ([]types.StackEvent, error) {
	result, err := d.api.DescribeStackEvents(ctx, &cloudformation.DescribeStackEventsInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		return nil, err
	}

	var events []types.StackEvent
	for i := range result.StackEvents {
		event := result.StackEvents[i]
		if event.Timestamp == nil || event.Timestamp.Before(since) {
			break
		}
		events = append(events, event)
	}

	// reverse to chronological
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

func (d *Deployer) deleteAndWait(ctx context.Context, req Request, began time.Time) error {
	_, err := d.api.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: aws.String(req.StackName),
	})
	if err != nil {
		return fmt.Errorf("failed to delete stack %s: %w", req.StackName, err)
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		status, err := Probe(ctx, d.api, req.StackName)
		if err != nil {
			return fmt.Errorf("failed to poll deletion of stack %s: %w", req.StackName, err)
		}
		if !status.Exists || status.StackStatus == types.StackStatusDeleteComplete {
			return nil
		}
		if status.StackStatus == types.StackStatusDeleteFailed {
			return &errors.StackOperationError{
				StackName: req.StackName,
				AccountID: req.AccountID,
				Region:    req.Region,
				Status:    string(types.StackStatusDeleteFailed),
				Reason:    "stack deletion failed while recovering from ROLLBACK_COMPLETE",
			}
		}

		if time.Since(began) > d.timeout {
			return &errors.StackTimeoutError{
				StackName: req.StackName,
				AccountID: req.AccountID,
				Region:    req.Region,
				Elapsed:   time.Since(began).Round(time.Second),
			}
		}
	}
}

func (d *Deployer) publish(req Request, status string, completedCount, totalCount int, latestResource, failureReason string) {
	d.sink.Publish(progress.Event{
		StackName:          req.StackName,
		AccountID:          req.AccountID,
		Region:             req.Region,
		Status:             status,
		CompletedResources: completedCount,
		TotalResources:     totalCount,
		LatestResourceID:   latestResource,
		FailureReason:      failureReason,
	})
}

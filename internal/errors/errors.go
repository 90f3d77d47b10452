package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrCredentialsUnavailable = errors.New("unable to establish ambient AWS credentials")
	ErrStagingBucketRequired  = errors.New("template exceeds inline size limit and no staging bucket is configured")
)

// RoleAssumptionError indicates that every candidate role for a target
// account failed to assume. It is fatal for that account's stacks only.
type RoleAssumptionError struct {
	TargetAccountID  string
	CurrentAccountID string
	AttemptedRoles   []string
}

func (e *RoleAssumptionError) Error() string {
	return fmt.Sprintf("unable to assume a role in account %s from %s (tried: %s)",
		e.TargetAccountID, e.CurrentAccountID, strings.Join(e.AttemptedRoles, ", "))
}

// MergeCollectionError indicates invalid data was discovered while collecting
// newly desired state for a merge strategy. PipelineSlug identifies the
// offending pipeline; Value is the rejected input.
type MergeCollectionError struct {
	Strategy     string
	PipelineSlug string
	Value        string
	Reason       string
}

func (e *MergeCollectionError) Error() string {
	if e.PipelineSlug == "" {
		return fmt.Sprintf("%s: invalid value %q: %s", e.Strategy, e.Value, e.Reason)
	}
	return fmt.Sprintf("%s: pipeline %q has invalid value %q: %s", e.Strategy, e.PipelineSlug, e.Value, e.Reason)
}

// MergeValidationError indicates the reconciled result of a merge strategy
// failed structural validation before template generation.
type MergeValidationError struct {
	Strategy string
	Errors   []string
}

func (e *MergeValidationError) Error() string {
	return fmt.Sprintf("%s: merged result failed validation: %s", e.Strategy, strings.Join(e.Errors, "; "))
}

// StackOperationError indicates the provider reported a terminal non-success
// status for a stack operation. Reason carries the most specific failure text
// available, preferring a per-resource event reason over the bare status.
type StackOperationError struct {
	StackName string
	AccountID string
	Region    string
	Status    string
	Reason    string
}

func (e *StackOperationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = e.Status
	}
	return fmt.Sprintf("stack %s in %s/%s: %s", e.StackName, e.AccountID, e.Region, reason)
}

// StackTimeoutError indicates polling exceeded the ceiling without the stack
// reaching a terminal state. Distinct from StackOperationError so callers can
// tell "provider is stuck" from "provider rejected it".
type StackTimeoutError struct {
	StackName string
	AccountID string
	Region    string
	Elapsed   time.Duration
}

func (e *StackTimeoutError) Error() string {
	return fmt.Sprintf("stack %s in %s/%s: no terminal status after %s", e.StackName, e.AccountID, e.Region, e.Elapsed)
}

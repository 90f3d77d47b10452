package merge

import (
	"context"
	"regexp"
	"slices"

	"github.com/rs/zerolog"

	"github.com/Dev-Ramps/DevRamps-CLI/internal/errors"
)

// BucketPolicyStrategyID identifies the artifact-bucket policy strategy.
const BucketPolicyStrategyID = "bucket-policy"

// The artifact bucket policy has a practical size ceiling; past this many
// principals the policy document risks exceeding it.
const bucketPolicyAccountWarnThreshold = 50

// PolicyOutputKey is the stack output the org stack exposes its current
// artifact-bucket policy document through.
const PolicyOutputKey = "ArtifactBucketPolicy"

var (
	accountIDPattern   = regexp.MustCompile(`^[0-9]{12}$`)
	arnAccountPattern  = regexp.MustCompile(`arn:aws:iam::([0-9]{12}):(?:root|role/[A-Za-z0-9+=,.@_/-]+)`)
	bareAccountPattern = regexp.MustCompile(`\b[0-9]{12}\b`)
)

// ValidAccountID reports whether s is a well-formed AWS account id.
func ValidAccountID(s string) bool {
	return accountIDPattern.MatchString(s)
}

// AccountList is the reconciled allow-list for the artifact bucket policy.
type AccountList struct {
	AllowedAccountIDs []string `json:"allowed_account_ids"`
}

// BucketPolicyStrategy reconciles the artifact bucket's cross-account
// allow-list. The bucket is shared across every pipeline's target accounts;
// overwriting its policy with only the latest run's accounts would cut off
// pipelines deployed by earlier runs, so the allow-list unions instead.
type BucketPolicyStrategy struct{}

func NewBucketPolicyStrategy() *BucketPolicyStrategy {
	return &BucketPolicyStrategy{}
}

func (*BucketPolicyStrategy) ID() string { return BucketPolicyStrategyID }

// ExtractExisting pulls the account allow-list out of the deployed policy
// document. An absent stack or a stack without the policy output reports
// ok=false. Extracted values that fail validation are skipped with a log;
// untrusted external state must never propagate a malformed id into a
// deployment.
func (*BucketPolicyStrategy) ExtractExisting(ctx context.Context, existing *ExistingStack) (any, bool) {
	logger := zerolog.Ctx(ctx)

	if existing == nil {
		return nil, false
	}
	document, ok := existing.Outputs[PolicyOutputKey]
	if !ok || document == "" {
		return nil, false
	}

	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if !ValidAccountID(id) {
			logger.Warn().
				Str("stack_name", existing.StackName).
				Str("value", id).
				Msg("Skipping malformed account id in existing bucket policy")
			return
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, match := range arnAccountPattern.FindAllStringSubmatch(document, -1) {
		add(match[1])
	}
	for _, match := range bareAccountPattern.FindAllString(document, -1) {
		add(match)
	}

	if len(ids) == 0 {
		return nil, false
	}
	slices.Sort(ids)
	return &AccountList{AllowedAccountIDs: ids}, true
}

// CollectNew gathers the CI/CD account and every pipeline's target accounts.
// Any malformed id fails the whole collection, naming the offending pipeline
// and value; bad input is never silently dropped.
func (*BucketPolicyStrategy) CollectNew(_ context.Context, mc *Context) (any, error) {
	if !ValidAccountID(mc.CICDAccountID) {
		return nil, &errors.MergeCollectionError{
			Strategy: BucketPolicyStrategyID,
			Value:    mc.CICDAccountID,
			Reason:   "CI/CD account id must be a 12-digit number",
		}
	}

	seen := map[string]bool{mc.CICDAccountID: true}
	ids := []string{mc.CICDAccountID}
	for _, pipeline := range mc.Pipelines {
		for _, id := range pipeline.TargetAccountIDs {
			if !ValidAccountID(id) {
				return nil, &errors.MergeCollectionError{
					Strategy:     BucketPolicyStrategyID,
					PipelineSlug: pipeline.Slug,
					Value:        id,
					Reason:       "target account id must be a 12-digit number",
				}
			}
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	slices.Sort(ids)
	return &AccountList{AllowedAccountIDs: ids}, nil
}

// Merge unions the existing and new allow-lists, deduplicated and sorted
// lexicographically for deterministic, diff-friendly output.
func (*BucketPolicyStrategy) Merge(existing any, ok bool, fresh any) any {
	merged := map[string]bool{}
	if ok {
		for _, id := range existing.(*AccountList).AllowedAccountIDs {
			merged[id] = true
		}
	}
	for _, id := range fresh.(*AccountList).AllowedAccountIDs {
		merged[id] = true
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return &AccountList{AllowedAccountIDs: ids}
}

// Validate re-checks every id in the merged result and warns when the
// allow-list grows past the policy size ceiling.
func (*BucketPolicyStrategy) Validate(result any) Validation {
	list := result.(*AccountList)

	var validation Validation
	for _, id := range list.AllowedAccountIDs {
		if !ValidAccountID(id) {
			validation.Errors = append(validation.Errors, "invalid account id: "+id)
		}
	}
	if len(list.AllowedAccountIDs) > bucketPolicyAccountWarnThreshold {
		validation.Warnings = append(validation.Warnings,
			"bucket policy allow-list exceeds 50 accounts; the policy document is approaching its size limit")
	}
	validation.Valid = len(validation.Errors) == 0
	return validation
}

var _ Strategy = (*BucketPolicyStrategy)(nil)

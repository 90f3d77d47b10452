package stack

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
)

// Status reports whether a named stack exists and its lifecycle status.
type Status struct {
	Exists      bool
	StackStatus types.StackStatus
	StackID     string
}

// Probe queries the current status of a stack. A "does not exist" response
// maps to Exists=false with no error; any other provider error propagates
// unchanged. Masking a probe failure as "does not exist" would silently turn
// an UPDATE into an unsafe CREATE.
func Probe(ctx context.Context, api DescribeStacksAPI, stackName string) (*Status, error) {
	result, err := api.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			if apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), "does not exist") {
				return &Status{Exists: false}, nil
			}
		}
		return nil, err
	}

	if len(result.Stacks) == 0 {
		return &Status{Exists: false}, nil
	}

	stack := result.Stacks[0]
	return &Status{
		Exists:      true,
		StackStatus: stack.StackStatus,
		StackID:     aws.ToString(stack.StackId),
	}, nil
}

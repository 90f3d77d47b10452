package stack

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/smithy-go"

	"github.com/Dev-Ramps/DevRamps-CLI/internal/merge"
)

// DescribeExisting snapshots a deployed stack's resources and outputs for
// merge strategies. A stack that does not exist returns nil with no error.
func DescribeExisting(ctx context.Context, api CloudFormationAPI, stackName, accountID, region string) (*merge.ExistingStack, error) {
	described, err := api.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		if isDoesNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to describe stack %s: %w", stackName, err)
	}
	if len(described.Stacks) == 0 {
		return nil, nil
	}

	existing := &merge.ExistingStack{
		StackName: stackName,
		AccountID: accountID,
		Region:    region,
		Resources: map[string]merge.Resource{},
		Outputs:   map[string]string{},
	}
	for _, output := range described.Stacks[0].Outputs {
		existing.Outputs[aws.ToString(output.OutputKey)] = aws.ToString(output.OutputValue)
	}

	resources, err := api.DescribeStackResources(ctx, &cloudformation.DescribeStackResourcesInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe resources of stack %s: %w", stackName, err)
	}
	for _, resource := range resources.StackResources {
		existing.Resources[aws.ToString(resource.LogicalResourceId)] = merge.Resource{
			Type:       aws.ToString(resource.ResourceType),
			PhysicalID: aws.ToString(resource.PhysicalResourceId),
			Status:     string(resource.ResourceStatus),
		}
	}

	return existing, nil
}

func isDoesNotExist(err error) bool {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), "does not exist")
	}
	return false
}

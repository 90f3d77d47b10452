package stack

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
)

func errDoesNotExist(stackName string) error {
	return &smithy.GenericAPIError{
		Code:    "ValidationError",
		Message: "Stack with id " + stackName + " does not exist",
	}
}

func errNoUpdates() error {
	return &smithy.GenericAPIError{
		Code:    "ValidationError",
		Message: "No updates are to be performed.",
	}
}

// describeResult scripts one DescribeStacks response; the last entry repeats.
type describeResult struct {
	status types.StackStatus
	err    error
}

type fakeCFN struct {
	mu sync.Mutex

	describes     []describeResult
	describeCalls int
	outputs       []types.Output
	events        []types.StackEvent
	resources     []types.StackResource

	createErr error
	updateErr error

	createCalls int
	updateCalls int
	deleteCalls int

	changeSetStatus  types.ChangeSetStatus
	changeSetReason  string
	changeSetChanges []types.Change

	createChangeSetCalls int
	deleteChangeSetCalls int
}

func (f *fakeCFN) DescribeStacks(_ context.Context, params *cloudformation.DescribeStacksInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.describeCalls
	if i >= len(f.describes) {
		i = len(f.describes) - 1
	}
	f.describeCalls++

	result := f.describes[i]
	if result.err != nil {
		return nil, result.err
	}
	return &cloudformation.DescribeStacksOutput{
		Stacks: []types.Stack{
			{
				StackName:   params.StackName,
				StackId:     aws.String("arn:aws:cloudformation:us-east-1:123456789012:stack/test/abc"),
				StackStatus: result.status,
				Outputs:     f.outputs,
			},
		},
	}, nil
}

func (f *fakeCFN) CreateStack(_ context.Context, _ *cloudformation.CreateStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &cloudformation.CreateStackOutput{StackId: aws.String("stack-id")}, nil
}

func (f *fakeCFN) UpdateStack(_ context.Context, _ *cloudformation.UpdateStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &cloudformation.UpdateStackOutput{StackId: aws.String("stack-id")}, nil
}

func (f *fakeCFN) DeleteStack(_ context.Context, _ *cloudformation.DeleteStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	return &cloudformation.DeleteStackOutput{}, nil
}

func (f *fakeCFN) DescribeStackEvents(_ context.Context, _ *cloudformation.DescribeStackEventsInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &cloudformation.DescribeStackEventsOutput{StackEvents: f.events}, nil
}

func (f *fakeCFN) DescribeStackResources(_ context.Context, _ *cloudformation.DescribeStackResourcesInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStackResourcesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &cloudformation.DescribeStackResourcesOutput{StackResources: f.resources}, nil
}

func (f *fakeCFN) CreateChangeSet(_ context.Context, _ *cloudformation.CreateChangeSetInput, _ ...func(*cloudformation.Options)) (*cloudformation.CreateChangeSetOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createChangeSetCalls++
	return &cloudformation.CreateChangeSetOutput{Id: aws.String("changeset-id")}, nil
}

func (f *fakeCFN) DescribeChangeSet(_ context.Context, _ *cloudformation.DescribeChangeSetInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeChangeSetOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &cloudformation.DescribeChangeSetOutput{
		Status:       f.changeSetStatus,
		StatusReason: aws.String(f.changeSetReason),
		Changes:      f.changeSetChanges,
	}, nil
}

func (f *fakeCFN) DeleteChangeSet(_ context.Context, _ *cloudformation.DeleteChangeSetInput, _ ...func(*cloudformation.Options)) (*cloudformation.DeleteChangeSetOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteChangeSetCalls++
	return &cloudformation.DeleteChangeSetOutput{}, nil
}

var _ CloudFormationAPI = (*fakeCFN)(nil)

// resourceEvent builds a stack event timestamped in the future so it always
// falls after the deployment's start time.
func resourceEvent(logicalID string, status types.ResourceStatus, reason string) types.StackEvent {
	ts := time.Now().Add(time.Hour)
	event := types.StackEvent{
		LogicalResourceId: aws.String(logicalID),
		ResourceStatus:    status,
		Timestamp:         &ts,
	}
	if reason != "" {
		event.ResourceStatusReason = aws.String(reason)
	}
	return event
}

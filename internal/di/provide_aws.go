package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/Dev-Ramps/DevRamps-CLI/internal/credentials"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/executor"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/merge"
	"github.com/Dev-Ramps/DevRamps-CLI/internal/stack"
)

func ProvideContext() context.Context {
	return context.Background()
}

func ProvideAWSConfig(ctx context.Context, region Region) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(string(region)))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

func ProvideSTSClient(cfg aws.Config) *sts.Client {
	return sts.NewFromConfig(cfg)
}

func ProvideS3Client(cfg aws.Config) *s3.Client {
	return s3.NewFromConfig(cfg)
}

func ProvideResolver(client *sts.Client) *credentials.Resolver {
	return credentials.NewResolver(client)
}

// ProvideClientFactory builds regional CloudFormation clients on top of the
// ambient config, swapping in assumed-role credentials when the target is a
// different account.
func ProvideClientFactory(cfg aws.Config) executor.ClientFactory {
	return func(creds *credentials.Assumed, region string) stack.CloudFormationAPI {
		return cloudformation.NewFromConfig(cfg, func(o *cloudformation.Options) {
			o.Region = region
			o.Credentials = creds.Provider(cfg.Credentials)
		})
	}
}

func ProvideRegistry() *merge.Registry {
	return merge.NewRegistry(merge.NewBucketPolicyStrategy())
}

// ProvideStager returns nil when no staging bucket is configured; the
// deployer then requires templates to fit the inline size limit.
func ProvideStager(client *s3.Client, bucket StagingBucket) *stack.Stager {
	if bucket == "" {
		return nil
	}
	return stack.NewStager(client, string(bucket))
}

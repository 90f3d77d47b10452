package stack

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
)

// MaxInlineTemplateBytes is the provider's TemplateBody size limit; larger
// templates must be submitted by URL from a staging bucket.
const MaxInlineTemplateBytes = 51200

// Stager uploads oversized templates to a staging bucket.
type Stager struct {
	client PutObjectAPI
	bucket string
}

func NewStager(client PutObjectAPI, bucket string) *Stager {
	return &Stager{client: client, bucket: bucket}
}

// Upload writes the template body under a unique key and returns the HTTPS
// URL CloudFormation accepts as a TemplateURL.
func (s *Stager) Upload(ctx context.Context, stackName string, body []byte) (string, error) {
	logger := zerolog.Ctx(ctx)

	key := fmt.Sprintf("templates/%s/%s.template", stackName, ksuid.New().String())
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload template to s3://%s/%s: %w", s.bucket, key, err)
	}

	logger.Debug().
		Str("bucket", s.bucket).
		Str("key", key).
		Int("length", len(body)).
		Msg("Staged oversized template")

	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key), nil
}

package workload

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// LoadS3 fetches a trace document from S3 and parses it the same way
// LoadLocal parses one from disk. Region selection and credential
// resolution go through the SDK's standard default chain (environment,
// shared config file, EC2/ECS instance role), the same as any other AWS
// SDK v2 client construction.
func LoadS3(ctx context.Context, bucket, key, region string, runStart time.Time) (Trace, error) {
	if bucket == "" || key == "" {
		return Trace{}, fmt.Errorf("s3 bucket and key are required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return Trace{}, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Trace{}, fmt.Errorf("get trace object s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	return ParseTrace(out.Body, runStart)
}

// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"fmt"

	appconfig "orbit-progression-service/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var r2Client *s3.Client
var r2Bucket string

// InitR2 wires the S3-compatible client used for ledger archive
// exports. Call only when cfg.Enabled(); without it uploads are
// skipped and the engine runs fine.
func InitR2(r2 appconfig.R2Config) error {
	r2Bucket = r2.Bucket

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			r2.AccessKeyID, r2.AccessKeySecret, "",
		)),
		config.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r2.AccountID),
				}, nil
			}),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to load R2 config: %w", err)
	}

	r2Client = s3.NewFromConfig(cfg)
	return nil
}

// R2Enabled reports whether InitR2 has run.
func R2Enabled() bool {
	return r2Client != nil
}

// UploadBytesToR2 writes an object and returns nothing but the error;
// archive keys are deterministic so callers can re-run a failed day.
func UploadBytesToR2(ctx context.Context, key string, body []byte, contentType string) error {
	if r2Client == nil {
		return fmt.Errorf("R2 client not initialized")
	}

	_, err := r2Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r2Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to R2: %w", err)
	}
	return nil
}

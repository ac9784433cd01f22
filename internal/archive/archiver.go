// Package archive snapshots approved content records to S3-compatible
// object storage (CloudFlare R2 in production). Snapshots are best-effort;
// the store remains the source of truth.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/offerwire/promofeed/internal/models"
)

// S3Archiver writes one JSON object per published record under a dated
// prefix.
type S3Archiver struct {
	client *s3.Client
	bucket string
}

// New builds an archiver against an S3-compatible endpoint.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string) (*S3Archiver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &S3Archiver{client: client, bucket: bucket}, nil
}

// ArchivePublished uploads the record as pretty-printed JSON.
func (a *S3Archiver) ArchivePublished(ctx context.Context, pub *models.PublishedRecord) error {
	data, err := json.MarshalIndent(pub, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal published record: %w", err)
	}

	key := fmt.Sprintf("published/%s/%s.json", pub.CreatedAt.Format("2006/01/02"), pub.Slug)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload snapshot %s: %w", key, err)
	}
	return nil
}

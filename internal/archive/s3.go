// Package archive writes expired usage samples to S3-compatible object
// storage before they are pruned from the database.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/edvin/metering/internal/model"
)

// Writer uploads sample batches as JSON objects. Objects are keyed by upload
// day and batch timestamp, so repeated archive runs never overwrite each
// other.
type Writer struct {
	logger    zerolog.Logger
	bucket    string
	endpoint  string
	region    string
	accessKey string
	secretKey string
}

func NewWriter(logger zerolog.Logger, bucket, endpoint, region, accessKey, secretKey string) *Writer {
	return &Writer{
		logger:    logger.With().Str("component", "sample-archive").Logger(),
		bucket:    bucket,
		endpoint:  endpoint,
		region:    region,
		accessKey: accessKey,
		secretKey: secretKey,
	}
}

// client returns an S3 client for the configured endpoint. Path-style
// addressing keeps self-hosted gateways (Ceph RGW, MinIO) working.
func (w *Writer) client() *s3.Client {
	opts := s3.Options{
		Region:       w.region,
		Credentials:  credentials.NewStaticCredentialsProvider(w.accessKey, w.secretKey, ""),
		UsePathStyle: true,
	}
	if w.endpoint != "" {
		opts.BaseEndpoint = aws.String(w.endpoint)
	}
	return s3.New(opts)
}

// WriteBatch uploads one batch of samples and returns the object key.
func (w *Writer) WriteBatch(ctx context.Context, samples []model.UsageSample) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	body, err := json.Marshal(samples)
	if err != nil {
		return "", fmt.Errorf("marshal sample batch: %w", err)
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("samples/%s/%d-%d.json", now.Format("2006/01/02"), now.UnixNano(), len(samples))

	_, err = w.client().PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload sample batch %s: %w", key, err)
	}

	w.logger.Info().Str("key", key).Int("samples", len(samples)).Msg("archived sample batch")
	return key, nil
}

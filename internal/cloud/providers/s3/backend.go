// Package s3 is the object storage behind the companion gateway. It opens
// and closes multipart uploads and hands out presigned URLs, so file bytes
// never pass through the gateway itself.
package s3

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alchemab/aab/internal/constants"
	"github.com/alchemab/aab/internal/logging"
	"github.com/alchemab/aab/internal/models"
)

var (
	// ErrResultNotFound is returned when a results prefix matches no object,
	// or more than one.
	ErrResultNotFound = errors.New("result file not found (or too many files found)")
	// ErrNoResultsBucket is returned when result downloads are not configured.
	ErrNoResultsBucket = errors.New("results bucket is not configured")
)

// Options configures a Backend.
type Options struct {
	Bucket        string
	ResultsBucket string
	Region        string
	// Endpoint points at an S3-compatible service; path-style addressing is used when set.
	Endpoint      string
	PresignExpiry time.Duration

	// Static credentials; the default AWS chain is used when AccessKeyID is empty.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	HTTPClient *nethttp.Client
	Logger     *logging.Logger
}

// Backend implements the gateway's storage operations on S3.
type Backend struct {
	client        *s3.Client
	presigner     *s3.PresignClient
	bucket        string
	resultsBucket string
	expiry        time.Duration
	logger        *logging.Logger
}

// NewBackend loads AWS configuration and builds the S3 and presign clients.
func NewBackend(ctx context.Context, opts Options) (*Backend, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	expiry := opts.PresignExpiry
	if expiry <= 0 {
		expiry = constants.PresignExpiry
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.HTTPClient != nil {
		loadOpts = append(loadOpts, config.WithHTTPClient(opts.HTTPClient))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			opts.SessionToken,
		)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		// Presigned part URLs are signed before the body exists
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Debug().
		Str("bucket", opts.Bucket).
		Str("region", opts.Region).
		Str("endpoint", opts.Endpoint).
		Dur("presign_expiry", expiry).
		Msg("S3 backend ready")

	return &Backend{
		client:        client,
		presigner:     s3.NewPresignClient(client, s3.WithPresignExpires(expiry)),
		bucket:        opts.Bucket,
		resultsBucket: opts.ResultsBucket,
		expiry:        expiry,
		logger:        logger,
	}, nil
}

// Bucket returns the upload bucket name.
func (b *Backend) Bucket() string {
	return b.bucket
}

// CreateMultipartUpload opens a multipart upload for key and returns its upload id.
func (b *Backend) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	out, err := b.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart upload for %s: %w", key, err)
	}
	uploadID := aws.ToString(out.UploadId)
	if uploadID == "" {
		return "", fmt.Errorf("create multipart upload for %s returned no upload id", key)
	}
	return uploadID, nil
}

// PresignUploadPart returns a URL accepting a PUT of one part.
func (b *Backend) PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32) (string, error) {
	req, err := b.presigner.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(b.bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign part %d of %s: %w", partNumber, key, err)
	}
	return req.URL, nil
}

// CompleteMultipartUpload commits parts into the final object and returns its location.
func (b *Backend) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []models.CompletedPart) (string, error) {
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.PartNumber),
		}
	}

	out, err := b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(b.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return "", fmt.Errorf("failed to complete multipart upload for %s: %w", key, err)
	}
	return aws.ToString(out.Location), nil
}

// AbortMultipartUpload discards an open upload and any parts stored for it.
func (b *Backend) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	_, err := b.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("failed to abort multipart upload for %s: %w", key, err)
	}
	return nil
}

// PresignPutObject returns a URL accepting a single PUT of the whole object.
func (b *Backend) PresignPutObject(ctx context.Context, key, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	req, err := b.presigner.PresignPutObject(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload of %s: %w", key, err)
	}
	return req.URL, nil
}

// PresignResult finds the single results object under prefix and returns
// a presigned GET for it.
func (b *Backend) PresignResult(ctx context.Context, prefix string) (string, error) {
	if b.resultsBucket == "" {
		return "", ErrNoResultsBucket
	}

	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.resultsBucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(2),
	})
	if err != nil {
		return "", fmt.Errorf("failed to list results under %s: %w", prefix, err)
	}
	if len(out.Contents) != 1 {
		return "", fmt.Errorf("%w: %d objects under %s", ErrResultNotFound, len(out.Contents), prefix)
	}
	key := aws.ToString(out.Contents[0].Key)

	req, err := b.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.resultsBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign download of %s: %w", key, err)
	}
	b.logger.Debug().Str("key", key).Msg("Presigned result download")
	return req.URL, nil
}

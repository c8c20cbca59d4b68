package staging

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/ucext/citizenconnect/internal/logger"
)

// PresignExpiry is how long a presigned media URL stays valid
const PresignExpiry = time.Hour

// S3API is the subset of the S3 client the stager uses
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner signs GET URLs for private buckets
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Options configures an S3Stager
type S3Options struct {
	Bucket string
	Region string
	Prefix string
	// PublicBaseURL serves objects directly, e.g. a CDN in front of the
	// bucket. When empty, URLs are presigned.
	PublicBaseURL string
}

// S3Stager stores media in an S3 bucket
type S3Stager struct {
	client    S3API
	presigner Presigner
	opts      S3Options
}

var _ Stager = (*S3Stager)(nil)

// NewS3Stager builds a stager from the default AWS credential chain
func NewS3Stager(ctx context.Context, opts S3Options) (*S3Stager, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return NewS3StagerWithClient(client, s3.NewPresignClient(client), opts), nil
}

// NewS3StagerWithClient builds a stager on an existing client
func NewS3StagerWithClient(client S3API, presigner Presigner, opts S3Options) *S3Stager {
	opts.PublicBaseURL = strings.TrimSuffix(opts.PublicBaseURL, "/")
	return &S3Stager{client: client, presigner: presigner, opts: opts}
}

// Name implements Stager
func (s *S3Stager) Name() string {
	return "s3"
}

// Put uploads the media. PutObject returns only once the object is stored.
func (s *S3Stager) Put(ctx context.Context, req StageRequest) (Staged, error) {
	detected, err := Detect(req.Data, req.Kind)
	if err != nil {
		return Staged{}, err
	}

	key := path.Join(s.opts.Prefix, time.Now().UTC().Format("2006-01-02"), uuid.NewString()+detected.Extension)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(req.Data),
		ContentType:   aws.String(detected.ContentType),
		ContentLength: aws.Int64(int64(len(req.Data))),
	})
	if err != nil {
		return Staged{}, fmt.Errorf("failed to upload media to s3: %w", err)
	}

	url, err := s.URL(ctx, key)
	if err != nil {
		s.cleanupOrphan(key)
		return Staged{}, err
	}

	logger.Debugf("Staged s3://%s/%s (%s)", s.opts.Bucket, key, detected.ContentType)

	return Staged{
		Key:         key,
		URL:         url,
		ContentType: detected.ContentType,
		Kind:        detected.Kind,
		Size:        int64(len(req.Data)),
	}, nil
}

// URL implements Stager. Without a public base URL every call presigns
// afresh, so a job that waited in the queue gets a URL valid for another
// PresignExpiry.
func (s *S3Stager) URL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("invalid media key %q", key)
	}
	if s.opts.PublicBaseURL != "" {
		return s.opts.PublicBaseURL + "/" + key, nil
	}
	presigned, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign media url: %w", err)
	}
	return presigned.URL, nil
}

func (s *S3Stager) cleanupOrphan(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Delete(ctx, key); err != nil {
		logger.Warnf("failed to remove orphaned object %s: %v", key, err)
	}
}

// Delete removes the object. S3 deletes of missing keys succeed.
func (s *S3Stager) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("invalid media key %q", key)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete s3 object %s: %w", key, err)
	}
	return nil
}

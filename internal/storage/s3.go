package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/timmy/gigescrow/internal/config"
)

// Provider distinguishes the S3 dialects that need different handling.
type Provider string

const (
	ProviderR2    Provider = "r2"
	ProviderS3    Provider = "s3"
	ProviderMinIO Provider = "s3compatible"
)

// presignTTL bounds how long a private download link stays valid.
const presignTTL = 15 * time.Minute

var _ ObjectStorage = (*Bucket)(nil)

// Bucket stores deliverables and chat attachments in one S3-compatible bucket.
type Bucket struct {
	client    *s3.Client
	presign   *s3.PresignClient
	name      string
	provider  Provider
	publicURL string
}

// NewStorage connects to the configured bucket. It returns a nil storage and
// no error when storage is not configured; uploads are then refused upstream.
func NewStorage(cfg *config.StorageConfig) (ObjectStorage, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	b, err := NewBucket(cfg)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// NewBucket builds a path-style client for cfg.Endpoint.
func NewBucket(cfg *config.StorageConfig) (*Bucket, error) {
	provider := Provider(cfg.Type)
	if provider == "" {
		provider = detectProvider(cfg.Endpoint)
	}
	region := cfg.Region
	switch {
	case region != "":
	case provider == ProviderR2:
		region = "auto"
	default:
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	endpoint := (&url.URL{Scheme: "http", Host: hostOf(cfg.Endpoint)})
	if cfg.UseSSL {
		endpoint.Scheme = "https"
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint.String())
		o.UsePathStyle = true
	})

	return &Bucket{
		client:    client,
		presign:   s3.NewPresignClient(client),
		name:      cfg.Bucket,
		provider:  provider,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
	}, nil
}

func detectProvider(endpoint string) Provider {
	host := strings.ToLower(hostOf(endpoint))
	switch {
	case strings.HasSuffix(host, ".r2.cloudflarestorage.com"):
		return ProviderR2
	case strings.HasSuffix(host, ".amazonaws.com"):
		return ProviderS3
	}
	return ProviderMinIO
}

// hostOf reduces an endpoint written with or without scheme and path to host[:port].
func hostOf(endpoint string) string {
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	host, _, _ := strings.Cut(endpoint, "/")
	return host
}

// EnsureBucket creates the bucket on first start. R2 buckets must be created
// from the Cloudflare dashboard.
func (b *Bucket) EnsureBucket(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.name)})
	if err == nil {
		return nil
	}
	var nf *types.NotFound
	if !errors.As(err, &nf) {
		return fmt.Errorf("head bucket %s: %w", b.name, err)
	}
	if b.provider == ProviderR2 {
		return fmt.Errorf("bucket %s does not exist; create it in the R2 dashboard", b.name)
	}
	if _, err := b.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(b.name)}); err != nil {
		return fmt.Errorf("create bucket %s: %w", b.name, err)
	}
	return nil
}

// Upload writes an object with an attachment disposition, so browsers save
// deliverables under their original name.
func (b *Bucket) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(b.name),
		Key:                aws.String(key),
		Body:               r,
		ContentLength:      aws.Int64(size),
		ContentType:        aws.String(contentType),
		ContentDisposition: aws.String(mime.FormatMediaType("attachment", map[string]string{"filename": DownloadName(key)})),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// GetURL returns a public URL, or a presigned one for private buckets.
func (b *Bucket) GetURL(ctx context.Context, key string) (string, error) {
	if b.publicURL != "" {
		return b.publicURL + "/" + key, nil
	}
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignTTL))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

// Delete removes an object. Missing keys succeed.
func (b *Bucket) Delete(ctx context.Context, key string) error {
	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

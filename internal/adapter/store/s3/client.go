// Package s3 implements store.ObjectStore on Amazon S3 and S3-compatible
// services.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"go.ngs.io/sti-api/internal/adapter/store"
	"go.ngs.io/sti-api/internal/domain"
)

// API is the subset of the S3 client used here.
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Config selects the region, endpoint and credentials.
type Config struct {
	Region          string
	Endpoint        string // Optional; enables path-style addressing.
	AccessKeyID     string // Optional; the default credential chain is used when empty.
	SecretAccessKey string
}

// Client is an S3-backed object store.
type Client struct {
	api    API
	awsCfg aws.Config
}

var _ store.ObjectStore = (*Client)(nil)

// New builds a client from cfg and the default AWS configuration sources.
func New(ctx context.Context, cfg Config) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Client{api: api, awsCfg: awsCfg}, nil
}

// NewWithAPI wraps an existing API implementation.
func NewWithAPI(api API) *Client {
	return &Client{api: api}
}

// ListCommonPrefixes lists the common prefixes under prefix across all pages.
func (c *Client) ListCommonPrefixes(ctx context.Context, bucket, prefix, delimiter string) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(delimiter),
	})

	var prefixes []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			prefixes = append(prefixes, aws.ToString(cp.Prefix))
		}
	}
	return prefixes, nil
}

// Download streams the object into localPath, creating or truncating it.
// The file may be left partially written on error.
func (c *Client) Download(ctx context.Context, bucket, key, localPath string) error {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: s3://%s/%s", domain.ErrNotFound, bucket, key)
		}
		return fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	f, err := os.Create(localPath) //nolint:gosec // path is built by the local cache
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		_ = f.Close()
		return fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync %s: %w", localPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", localPath, err)
	}
	return nil
}

// Exists probes the object with HeadObject. Only a not-found response is
// reported as false without an error.
func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head s3://%s/%s: %w", bucket, key, err)
}

// Sample is a single listing page under a prefix.
type Sample struct {
	Prefixes []string
	Keys     []string
}

// ListSample fetches one page of at most maxKeys entries under prefix.
func (c *Client) ListSample(ctx context.Context, bucket, prefix string, maxKeys int32) (*Sample, error) {
	out, err := c.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
		MaxKeys:   aws.Int32(maxKeys),
	})
	if err != nil {
		return nil, err
	}

	s := &Sample{}
	for _, cp := range out.CommonPrefixes {
		s.Prefixes = append(s.Prefixes, aws.ToString(cp.Prefix))
	}
	for _, obj := range out.Contents {
		s.Keys = append(s.Keys, aws.ToString(obj.Key))
	}
	return s, nil
}

// CallerIdentity returns the ARN of the credentials in use.
func (c *Client) CallerIdentity(ctx context.Context) (string, error) {
	if c.awsCfg.Credentials == nil {
		return "", errors.New("no AWS configuration loaded")
	}
	out, err := sts.NewFromConfig(c.awsCfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.Arn), nil
}

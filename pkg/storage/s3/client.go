package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/adyeetya/blogs-backend/pkg/config"
	"github.com/adyeetya/blogs-backend/pkg/logger"
	"github.com/adyeetya/blogs-backend/pkg/storage"
)

const pingTimeout = 5 * time.Second

// API is the subset of the S3 client used here.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Client puts magazine artifacts into a single S3 bucket. Credentials come
// from the default AWS chain (env, shared config, instance role).
type Client struct {
	api           API
	bucket        string
	publicBase    string
	uploadTimeout time.Duration
}

var _ storage.Store = (*Client)(nil)

func NewClient(ctx context.Context, storageCfg config.StorageConfig, cfg config.S3Config, logg *logger.Logger) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	client := New(api, storageCfg, cfg)
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("s3 health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"bucket": cfg.Bucket, "region": cfg.Region}), "s3 client initialized")
	}
	return client, nil
}

// New wraps an existing S3 API implementation.
func New(api API, storageCfg config.StorageConfig, cfg config.S3Config) *Client {
	return &Client{
		api:           api,
		bucket:        cfg.Bucket,
		publicBase:    publicBase(storageCfg.PublicBaseURL, cfg),
		uploadTimeout: storageCfg.UploadTimeout,
	}
}

func publicBase(configured string, cfg config.S3Config) string {
	if configured != "" {
		return configured
	}
	if cfg.Endpoint != "" {
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
}

// URL returns the public URL of key without contacting S3.
func (c *Client) URL(key string) string {
	return storage.JoinURL(c.publicBase, key)
}

// Put uploads localPath to key, overwriting any existing object.
func (c *Client) Put(ctx context.Context, localPath, key string) (storage.Object, error) {
	if err := storage.ValidateKey(key); err != nil {
		return storage.Object{}, err
	}

	f, size, contentType, err := storage.OpenLocal(localPath)
	if err != nil {
		return storage.Object{}, err
	}
	defer f.Close()

	if c.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.uploadTimeout)
		defer cancel()
	}

	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return storage.Object{}, classify(err, "s3 put "+key)
	}

	return storage.Object{Key: key, URL: c.URL(key), SizeBytes: size}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.api == nil {
		return errors.New("s3 client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return classify(err, "s3 head bucket")
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (c *Client) Close() error {
	return nil
}

func classify(err error, msg string) error {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return storage.ClassifyStatus(respErr.HTTPStatusCode(), err, msg)
	}
	return storage.ClassifyTransport(err, msg)
}

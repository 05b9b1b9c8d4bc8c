package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	cloudstorage "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/adyeetya/blogs-backend/pkg/config"
	pkgerrors "github.com/adyeetya/blogs-backend/pkg/errors"
	"github.com/adyeetya/blogs-backend/pkg/logger"
	"github.com/adyeetya/blogs-backend/pkg/storage"
)

const (
	pingTimeout    = 5 * time.Second
	defaultBaseURL = "https://storage.googleapis.com"
)

type openWriterFunc func(ctx context.Context, key, contentType string) io.WriteCloser

// Client puts magazine artifacts into a single GCS bucket.
type Client struct {
	raw           *cloudstorage.Client
	bucket        string
	publicBase    string
	uploadTimeout time.Duration
	openWriter    openWriterFunc
	attrs         func(ctx context.Context) error
}

var _ storage.Store = (*Client)(nil)

func NewClient(ctx context.Context, storageCfg config.StorageConfig, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	var opts []option.ClientOption
	switch {
	case gcp.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case gcp.ApplicationCredentials != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}

	raw, err := cloudstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}

	client := newWithBucket(raw.Bucket(cfg.BucketName), cfg.BucketName, storageCfg)
	client.raw = raw

	if err := client.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", cfg.BucketName), "gcs client initialized")
	}

	return client, nil
}

func newWithBucket(handle *cloudstorage.BucketHandle, bucket string, storageCfg config.StorageConfig) *Client {
	base := storageCfg.PublicBaseURL
	if base == "" {
		base = defaultBaseURL + "/" + bucket
	}
	return &Client{
		bucket:        bucket,
		publicBase:    base,
		uploadTimeout: storageCfg.UploadTimeout,
		openWriter: func(ctx context.Context, key, contentType string) io.WriteCloser {
			w := handle.Object(key).NewWriter(ctx)
			w.ContentType = contentType
			return w
		},
		attrs: func(ctx context.Context) error {
			_, err := handle.Attrs(ctx)
			return err
		},
	}
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

// URL returns the public URL of key without contacting GCS.
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

	var cancel context.CancelFunc
	if c.uploadTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.uploadTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	w := c.openWriter(ctx, key, contentType)
	if _, err := io.Copy(w, f); err != nil {
		// Close commits whatever was written; cancelling first aborts the upload.
		cancel()
		_ = w.Close()
		return storage.Object{}, classify(err, "gcs write "+key)
	}
	if err := w.Close(); err != nil {
		return storage.Object{}, classify(err, "gcs finalize "+key)
	}

	return storage.Object{Key: key, URL: c.URL(key), SizeBytes: size}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.attrs == nil {
		return errors.New("gcs client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.attrs(ctx); err != nil {
		return classify(err, "gcs bucket check")
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func classify(err error, msg string) error {
	if errors.Is(err, cloudstorage.ErrBucketNotExist) {
		return pkgerrors.Wrap(pkgerrors.CodeStorageRejected, err, msg)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return storage.ClassifyStatus(gerr.Code, err, msg)
	}
	return storage.ClassifyTransport(err, msg)
}

// Package storage defines the object store contract used by the ingestion
// pipeline and the artifact key layout under a magazine's prefix.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	pkgerrors "github.com/adyeetya/blogs-backend/pkg/errors"
)

// Object describes a stored artifact.
type Object struct {
	Key       string
	URL       string
	SizeBytes int64
}

// Store puts local files at remote keys. Put overwrites unconditionally so a
// retry with the same key is safe.
type Store interface {
	Put(ctx context.Context, localPath, key string) (Object, error)
	URL(key string) string
	Ping(ctx context.Context) error
	Close() error
}

const (
	sourceFileName = "source.pdf"
	pagesDir       = "pages"
)

// PrefixForSlug returns the storage prefix every artifact of a magazine lives under.
func PrefixForSlug(slug string) string {
	return path.Join("magazines", slug)
}

// SourceKey is the key of the raw uploaded PDF.
func SourceKey(prefix string) string {
	return path.Join(prefix, sourceFileName)
}

// PageKey is the key of a transcoded page. Artifact names count from 1 while
// the logical index counts from 0.
func PageKey(prefix string, index int, ext string) string {
	return path.Join(prefix, pagesDir, fmt.Sprintf("page-%03d.%s", index+1, strings.TrimPrefix(ext, ".")))
}

// JoinURL appends an object key to a public base URL, escaping each path segment.
func JoinURL(base, key string) string {
	base = strings.TrimRight(base, "/")
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return base + "/" + strings.Join(segments, "/")
}

// ValidateKey rejects keys the backends would refuse or that would escape the prefix.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return pkgerrors.New(pkgerrors.CodeStorageRejected, "object key is empty")
	case strings.HasPrefix(key, "/"):
		return pkgerrors.New(pkgerrors.CodeStorageRejected, "object key must be relative")
	case strings.Contains(key, ".."):
		return pkgerrors.New(pkgerrors.CodeStorageRejected, "object key must not contain '..'")
	case len(key) > 1024:
		return pkgerrors.New(pkgerrors.CodeStorageRejected, "object key too long")
	}
	return nil
}

// OpenLocal opens a local file for upload and returns its size and detected content type.
func OpenLocal(localPath string) (*os.File, int64, string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, 0, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open local file for upload")
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stat local file for upload")
	}
	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectReader(f); err == nil {
		contentType = mt.String()
	}
	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return nil, 0, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "rewind local file")
	}
	return f, info.Size(), contentType, nil
}

// ClassifyStatus maps an HTTP status returned by a backend to a storage error.
func ClassifyStatus(status int, err error, msg string) error {
	switch {
	case status == 429 || status == 408 || status >= 500:
		return pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, msg)
	case status >= 400:
		return pkgerrors.Wrap(pkgerrors.CodeStorageRejected, err, msg)
	default:
		return ClassifyTransport(err, msg)
	}
}

// ClassifyTransport maps an error that carries no HTTP status. The backend
// never answered, so the store is treated as unavailable.
func ClassifyTransport(err error, msg string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, msg)
}

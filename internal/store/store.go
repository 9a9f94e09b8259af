// Package store persists stage artifacts as blobs addressed by key under a
// base URL (file://, mem://, s3://, gs://).
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

// ErrNotFound is returned by Get for a key that holds no blob.
var ErrNotFound = errors.New("blob not found")

// Blob is a key-value store without partial-write visibility.
type Blob interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Exists(ctx context.Context, key string) (bool, error)
}

// AFS is a Blob over viant/afs.
type AFS struct {
	fs      afs.Service
	baseURL string
}

// New returns a store rooted at baseURL.
func New(baseURL string) *AFS {
	return &AFS{fs: afs.New(), baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

// URL resolves key under the base URL.
func (s *AFS) URL(key string) string {
	return url.Join(s.baseURL, strings.TrimLeft(key, "/"))
}

func (s *AFS) Get(ctx context.Context, key string) ([]byte, error) {
	u := s.URL(key)
	ok, err := s.fs.Exists(ctx, u)
	if err != nil {
		return nil, errors.Wrapf(err, "check %s", u)
	}
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s", key)
	}
	data, err := s.fs.DownloadWithURL(ctx, u)
	if err != nil {
		return nil, errors.Wrapf(err, "download %s", u)
	}
	return data, nil
}

// Put writes data to a unique sibling first and moves it over key, so
// readers see either the old blob or the complete new one.
func (s *AFS) Put(ctx context.Context, key string, data []byte) error {
	u := s.URL(key)
	tmp := u + "." + uuid.NewString() + ".tmp"
	if err := s.fs.Upload(ctx, tmp, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return errors.Wrapf(err, "upload %s", tmp)
	}
	if err := s.fs.Move(ctx, tmp, u); err != nil {
		_ = s.fs.Delete(ctx, tmp)
		return errors.Wrapf(err, "move %s", u)
	}
	return nil
}

func (s *AFS) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.fs.Exists(ctx, s.URL(key))
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return ok, err
}

// Key joins path elements of an artifact key.
func Key(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, "/")
}

// SaveJSON stores v as indented JSON.
func SaveJSON(ctx context.Context, b Blob, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return b.Put(ctx, key, data)
}

// LoadJSON decodes the blob at key into v.
func LoadJSON(ctx context.Context, b Blob, key string, v any) error {
	data, err := b.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "decode %s", key)
	}
	return nil
}

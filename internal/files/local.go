package files

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"comfydeps/pkg/models"
)

// LocalHasher hashes files found under a root directory that mirrors the
// runtime's folder layout (models/..., input/...).
type LocalHasher struct {
	Root string
}

// Hash returns the hex sha256 of the file at the logical path. The read is
// abandoned when ctx is cancelled.
func (h LocalHasher) Hash(ctx context.Context, logical string) (models.Hash, error) {
	f, err := os.Open(filepath.Join(h.Root, filepath.FromSlash(logical)))
	if err != nil {
		return "", err
	}
	defer f.Close()

	sum := sha256.New()
	if _, err := io.Copy(sum, &ctxReader{ctx: ctx, r: f}); err != nil {
		return "", err
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// DirUploader copies files into a content-addressed directory tree
// (<Dir>/<hash>/<basename>) and returns their URL under BaseURL.
type DirUploader struct {
	SourceRoot string
	Dir        string
	BaseURL    string
}

// Upload copies the file at the logical path. An upload of identical content
// is a no-op that returns the same URL.
func (u DirUploader) Upload(ctx context.Context, logical string, hash, previousHash models.Hash) (string, error) {
	name := path.Base(logical)
	target := filepath.Join(u.Dir, hash, name)
	location := u.BaseURL + "/" + hash + "/" + name

	if _, err := os.Stat(target); err == nil {
		return location, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	src, err := os.Open(filepath.Join(u.SourceRoot, filepath.FromSlash(logical)))
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: src}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to copy file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("failed to publish file: %w", err)
	}
	return location, nil
}

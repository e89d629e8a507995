package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
)

// FSDocuments keeps each document as a file under the filesystem root.
type FSDocuments struct {
	fs billy.Filesystem
}

func NewFSDocuments(fs billy.Filesystem) *FSDocuments {
	return &FSDocuments{fs: fs}
}

func (d *FSDocuments) Read(_ context.Context, key string) ([]byte, error) {
	f, err := d.fs.Open(key)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Write stages the content in a sibling temp file and renames it over the
// target, so readers see either the old or the new document.
func (d *FSDocuments) Write(_ context.Context, key string, data []byte) error {
	if err := d.fs.MkdirAll(path.Dir(key), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", key, err)
	}

	tmp := key + ".tmp-" + uuid.NewString()
	f, err := d.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", key, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		d.fs.Remove(tmp)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		d.fs.Remove(tmp)
		return fmt.Errorf("close %s: %w", key, err)
	}

	if err := d.fs.Rename(tmp, key); err != nil {
		d.fs.Remove(tmp)
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

func (d *FSDocuments) Close() error { return nil }

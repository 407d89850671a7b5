package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
)

// FileDriver stores each concern as one JSON file under
// <root>/<account>/<concern>.json.
type FileDriver struct {
	root string
}

// NewFileDriver creates a file-backed driver rooted at dir.
func NewFileDriver(dir string) (*FileDriver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data dir %s", dir)
	}
	return &FileDriver{root: dir}, nil
}

func (d *FileDriver) path(concern Concern, account string) string {
	return filepath.Join(d.root, account, string(concern)+".json")
}

// Load reads the document. Missing and unreadable files both yield nil bytes:
// the caller starts from an empty collection.
func (d *FileDriver) Load(_ context.Context, concern Concern, account string) ([]byte, error) {
	raw, err := os.ReadFile(d.path(concern, account))
	if err != nil {
		return nil, nil
	}
	return raw, nil
}

// Save writes the document to a temporary file in the same directory and
// renames it into place, so a concurrent reader never observes a partial
// write. The last writer wins; there is no cross-process lock.
func (d *FileDriver) Save(_ context.Context, concern Concern, account string, doc []byte) error {
	path := d.path(concern, account)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create account dir for %s", account)
	}

	tmp := path + ".tmp." + shortuuid.New()
	if err := os.WriteFile(tmp, doc, 0o644); err != nil {
		return errors.Wrapf(err, "write temp document %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "replace document %s", path)
	}
	return nil
}

func (d *FileDriver) Close() error {
	return nil
}

var _ Driver = (*FileDriver)(nil)

package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/BearBump/ReturnBox/internal/syncerr"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

const (
	itemsFile      = "items.json"
	seenFile       = "seen_messages.json"
	candidatesFile = "candidates.json"
)

// Storage keeps each collection as a JSON document in dir. Writers take a
// cross-process file lock and replace the document atomically.
type Storage struct {
	dir string
}

func New(dir string) (*Storage, error) {
	if dir == "" {
		return nil, errors.New("storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "create storage dir")
	}
	return &Storage{dir: dir}, nil
}

func (s *Storage) Close() {}

func (s *Storage) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Storage) withLock(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := flock.New(s.path(name) + ".lock")
	if err := l.Lock(); err != nil {
		return errors.Wrap(err, "lock "+name)
	}
	defer func() { _ = l.Unlock() }()
	return fn()
}

// readJSON leaves out untouched when the file does not exist yet.
func (s *Storage) readJSON(name string, out any) error {
	data, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read "+name)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(syncerr.ErrDecode, "%s: %v", name, err)
	}
	return nil
}

func (s *Storage) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal "+name)
	}
	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "write "+name)
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "rename "+name)
	}
	return nil
}

package filestore

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/BearBump/ReturnBox/internal/syncerr"
	"github.com/pkg/errors"
)

// SeenSet is the file-backed set of inbox message ids already surfaced or hidden.
type SeenSet struct {
	s *Storage
}

func (s *Storage) SeenSet() *SeenSet {
	return &SeenSet{s: s}
}

// loadSeen moves an unreadable seen-set aside and starts from an empty one.
// Caller holds the seen-set lock.
func (s *Storage) loadSeen() (map[string]struct{}, error) {
	var ids []string
	if err := s.readJSON(seenFile, &ids); err != nil {
		if !errors.Is(err, syncerr.ErrDecode) {
			return nil, err
		}
		aside := s.path(seenFile) + ".corrupt-" + strconv.FormatInt(time.Now().Unix(), 10)
		if rerr := os.Rename(s.path(seenFile), aside); rerr != nil {
			return nil, errors.Wrap(rerr, "quarantine "+seenFile)
		}
		slog.Warn("seen-set is unreadable, starting empty", "moved_to", aside, "error", err.Error())
		ids = nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (s *Storage) saveSeen(set map[string]struct{}) error {
	return s.writeJSON(seenFile, sortedKeys(set))
}

func (ss *SeenSet) Contains(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := ss.s.withLock(ctx, seenFile, func() error {
		set, err := ss.s.loadSeen()
		if err != nil {
			return err
		}
		_, ok = set[id]
		return nil
	})
	return ok, err
}

func (ss *SeenSet) Add(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return ss.s.withLock(ctx, seenFile, func() error {
		set, err := ss.s.loadSeen()
		if err != nil {
			return err
		}
		for _, id := range ids {
			set[id] = struct{}{}
		}
		return ss.s.saveSeen(set)
	})
}

func (ss *SeenSet) Remove(ctx context.Context, id string) error {
	return ss.s.withLock(ctx, seenFile, func() error {
		set, err := ss.s.loadSeen()
		if err != nil {
			return err
		}
		if _, ok := set[id]; !ok {
			return nil
		}
		delete(set, id)
		return ss.s.saveSeen(set)
	})
}

func (ss *SeenSet) Count(ctx context.Context) (int, error) {
	ids, err := ss.List(ctx)
	return len(ids), err
}

func (ss *SeenSet) List(ctx context.Context) ([]string, error) {
	var out []string
	err := ss.s.withLock(ctx, seenFile, func() error {
		set, err := ss.s.loadSeen()
		if err != nil {
			return err
		}
		out = sortedKeys(set)
		return nil
	})
	return out, err
}

func (ss *SeenSet) Clear(ctx context.Context) error {
	return ss.s.withLock(ctx, seenFile, func() error {
		return ss.s.writeJSON(seenFile, []string{})
	})
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

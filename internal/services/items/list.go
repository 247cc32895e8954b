package items

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/syncerr"
	"github.com/pkg/errors"
)

type Store interface {
	LoadItems(ctx context.Context) ([]models.TrackedItem, error)
	SaveItems(ctx context.Context, items []models.TrackedItem) error
}

// List is the in-memory view of the persisted tracked items. All mutations go
// through keyed updates and reach the store on Flush.
type List struct {
	store Store

	mu    sync.Mutex
	items []models.TrackedItem
	index map[string]int
	dirty bool
}

func New(store Store) *List {
	return &List{store: store, index: map[string]int{}}
}

// Load replaces the in-memory list with the stored one. An undecodable store
// is treated as empty.
func (l *List) Load(ctx context.Context) error {
	items, err := l.store.LoadItems(ctx)
	if err != nil {
		if !errors.Is(err, syncerr.ErrDecode) {
			return err
		}
		slog.Warn("stored items are unreadable, starting empty", "error", err.Error())
		items = nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = items
	l.reindexLocked()
	l.dirty = false
	return nil
}

func (l *List) reindexLocked() {
	l.index = make(map[string]int, len(l.items))
	for i, it := range l.items {
		l.index[it.ID] = i
	}
}

// Snapshot returns copies safe to read without holding the lock.
func (l *List) Snapshot() []models.TrackedItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.TrackedItem, len(l.items))
	for i := range l.items {
		out[i] = clone(l.items[i])
	}
	return out
}

func (l *List) Get(id string) (models.TrackedItem, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return models.TrackedItem{}, false
	}
	return clone(l.items[i]), true
}

// Update applies fn to the item with id under the list lock.
// It reports false when the item no longer exists.
func (l *List) Update(id string, fn func(it *models.TrackedItem)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return false
	}
	fn(&l.items[i])
	l.items[i].ID = id
	l.dirty = true
	return true
}

// Upsert adds or replaces an item; used by the item management surface.
func (l *List) Upsert(it models.TrackedItem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i, ok := l.index[it.ID]; ok {
		l.items[i] = clone(it)
	} else {
		l.index[it.ID] = len(l.items)
		l.items = append(l.items, clone(it))
	}
	l.dirty = true
}

func (l *List) Delete(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return false
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	l.reindexLocked()
	l.dirty = true
	return true
}

func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Flush writes the list to the store if anything changed since the last flush.
func (l *List) Flush(ctx context.Context) error {
	l.mu.Lock()
	if !l.dirty {
		l.mu.Unlock()
		return nil
	}
	snap := make([]models.TrackedItem, len(l.items))
	for i := range l.items {
		snap[i] = clone(l.items[i])
	}
	l.dirty = false
	l.mu.Unlock()

	if err := l.store.SaveItems(ctx, snap); err != nil {
		l.mu.Lock()
		l.dirty = true
		l.mu.Unlock()
		return errors.Wrap(err, "save items")
	}
	return nil
}

func clone(it models.TrackedItem) models.TrackedItem {
	out := it
	if it.TrackingNumber != nil {
		v := *it.TrackingNumber
		out.TrackingNumber = &v
	}
	if it.LastSyncedAt != nil {
		v := *it.LastSyncedAt
		out.LastSyncedAt = &v
	}
	if it.TrackingInfo != nil {
		info := *it.TrackingInfo
		info.Details = append([]models.TrackingDetail(nil), it.TrackingInfo.Details...)
		if it.TrackingInfo.ETA != nil {
			v := *it.TrackingInfo.ETA
			info.ETA = &v
		}
		out.TrackingInfo = &info
	}
	if it.ImageIDs != nil {
		out.ImageIDs = append([]string(nil), it.ImageIDs...)
	}
	return out
}

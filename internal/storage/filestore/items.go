package filestore

import (
	"context"

	"github.com/BearBump/ReturnBox/internal/models"
)

func (s *Storage) LoadItems(ctx context.Context) ([]models.TrackedItem, error) {
	var items []models.TrackedItem
	err := s.withLock(ctx, itemsFile, func() error {
		return s.readJSON(itemsFile, &items)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Storage) SaveItems(ctx context.Context, items []models.TrackedItem) error {
	if items == nil {
		items = []models.TrackedItem{}
	}
	return s.withLock(ctx, itemsFile, func() error {
		return s.writeJSON(itemsFile, items)
	})
}

package filestore

import (
	"context"
	"sort"

	"github.com/BearBump/ReturnBox/internal/models"
)

// AddCandidates merges candidates into the pending inbox by message id.
func (s *Storage) AddCandidates(ctx context.Context, cs []models.CandidateReturn) error {
	if len(cs) == 0 {
		return nil
	}
	return s.withLock(ctx, candidatesFile, func() error {
		var cur []models.CandidateReturn
		if err := s.readJSON(candidatesFile, &cur); err != nil {
			return err
		}
		byID := make(map[string]int, len(cur))
		for i, c := range cur {
			byID[c.MessageID] = i
		}
		for _, c := range cs {
			if i, ok := byID[c.MessageID]; ok {
				cur[i] = c
				continue
			}
			byID[c.MessageID] = len(cur)
			cur = append(cur, c)
		}
		sort.SliceStable(cur, func(i, j int) bool { return cur[i].EmailDate.After(cur[j].EmailDate) })
		return s.writeJSON(candidatesFile, cur)
	})
}

func (s *Storage) ListCandidates(ctx context.Context) ([]models.CandidateReturn, error) {
	var cur []models.CandidateReturn
	err := s.withLock(ctx, candidatesFile, func() error {
		return s.readJSON(candidatesFile, &cur)
	})
	if err != nil {
		return nil, err
	}
	if cur == nil {
		cur = []models.CandidateReturn{}
	}
	return cur, nil
}

// DismissCandidate drops a candidate from the pending inbox. It stays in the seen-set.
func (s *Storage) DismissCandidate(ctx context.Context, messageID string) error {
	return s.withLock(ctx, candidatesFile, func() error {
		var cur []models.CandidateReturn
		if err := s.readJSON(candidatesFile, &cur); err != nil {
			return err
		}
		out := cur[:0]
		for _, c := range cur {
			if c.MessageID != messageID {
				out = append(out, c)
			}
		}
		return s.writeJSON(candidatesFile, out)
	})
}

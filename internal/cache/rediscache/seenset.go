package rediscache

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const DefaultSeenKey = "returnbox:seen_messages"

// SeenSet: постоянное множество id писем, которые уже показывали пользователю
// (или которые он скрыл). Хранится одним Redis SET.
type SeenSet struct {
	c   *redis.Client
	key string
}

func NewSeenSet(addr, key string) *SeenSet {
	if key == "" {
		key = DefaultSeenKey
	}
	return &SeenSet{
		c:   redis.NewClient(&redis.Options{Addr: addr}),
		key: key,
	}
}

func (s *SeenSet) Contains(ctx context.Context, id string) (bool, error) {
	ok, err := s.c.SIsMember(ctx, s.key, id).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis sismember")
	}
	return ok, nil
}

func (s *SeenSet) Add(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		members = append(members, id)
	}
	if err := s.c.SAdd(ctx, s.key, members...).Err(); err != nil {
		return errors.Wrap(err, "redis sadd")
	}
	return nil
}

func (s *SeenSet) Remove(ctx context.Context, id string) error {
	if err := s.c.SRem(ctx, s.key, id).Err(); err != nil {
		return errors.Wrap(err, "redis srem")
	}
	return nil
}

func (s *SeenSet) Count(ctx context.Context) (int, error) {
	n, err := s.c.SCard(ctx, s.key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "redis scard")
	}
	return int(n), nil
}

func (s *SeenSet) List(ctx context.Context) ([]string, error) {
	ids, err := s.c.SMembers(ctx, s.key).Result()
	if err != nil && err != redis.Nil {
		return nil, errors.Wrap(err, "redis smembers")
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *SeenSet) Clear(ctx context.Context) error {
	if err := s.c.Del(ctx, s.key).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

func (s *SeenSet) Close() error {
	return s.c.Close()
}

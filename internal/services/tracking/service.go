package tracking

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/ReturnBox/internal/cache"
	"github.com/BearBump/ReturnBox/internal/integrations/carrier"
	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/syncerr"
	"github.com/pkg/errors"
)

const DefaultTTL = 30 * time.Minute

type RateLimiter interface {
	AllowCarrier(ctx context.Context, carrierCode string, perMinute int64, now time.Time) (bool, error)
}

type cacheEntry struct {
	Info      *models.TrackingInfo `json:"info"`
	FetchedAt time.Time            `json:"fetched_at"`
}

// Service is the cache-first tracking lookup used by the sync run.
type Service struct {
	client carrier.Client
	cache  cache.BytesCache
	ttl    time.Duration

	rl        RateLimiter
	perMinute int64

	now func() time.Time
}

func New(client carrier.Client, c cache.BytesCache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		client: client,
		cache:  c,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithRateLimit(rl RateLimiter, perMinute int64) *Service {
	if rl != nil && perMinute > 0 {
		s.rl = rl
		s.perMinute = perMinute
	}
	return s
}

func (s *Service) TTL() time.Duration { return s.ttl }

// Fetch returns current tracking info. A fresh cache entry is returned without a network call.
// Failed lookups are never cached.
func (s *Service) Fetch(ctx context.Context, trackingNumber string) (*models.TrackingInfo, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return nil, errors.New("tracking number is required")
	}

	if info, ok := s.fromCache(ctx, trackingNumber); ok {
		return info, nil
	}

	carrierCode := carrier.Detect(trackingNumber)
	now := s.now()

	if s.rl != nil {
		allowed, err := s.rl.AllowCarrier(ctx, carrierCode, s.perMinute, now)
		if err != nil {
			// лимитер недоступен, синк не блокируем
			slog.Warn("tracking rate limiter", "error", err.Error())
		} else if !allowed {
			return nil, errors.Wrapf(syncerr.ErrNetwork, "rate limited for carrier %s", carrierCode)
		}
	}

	info, err := s.client.GetTracking(ctx, carrierCode, trackingNumber)
	if err != nil {
		return nil, err
	}

	s.store(ctx, trackingNumber, info, now)
	return info, nil
}

func (s *Service) fromCache(ctx context.Context, trackingNumber string) (*models.TrackingInfo, bool) {
	if s.cache == nil {
		return nil, false
	}
	b, ok, err := s.cache.Get(ctx, cacheKey(trackingNumber))
	if err != nil || !ok {
		return nil, false
	}
	var e cacheEntry
	if json.Unmarshal(b, &e) != nil || e.Info == nil {
		return nil, false
	}
	if s.now().Sub(e.FetchedAt) >= s.ttl {
		return nil, false
	}
	return e.Info, true
}

func (s *Service) store(ctx context.Context, trackingNumber string, info *models.TrackingInfo, now time.Time) {
	if s.cache == nil {
		return
	}
	b, err := json.Marshal(cacheEntry{Info: info, FetchedAt: now})
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(trackingNumber), b, s.ttl); err != nil {
		slog.Warn("tracking cache set", "tracking_number", trackingNumber, "error", err.Error())
	}
}

func cacheKey(trackingNumber string) string {
	return "tracking:" + trackingNumber + ":info"
}

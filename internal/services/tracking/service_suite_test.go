package tracking

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/syncerr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type carrierMock struct {
	mock.Mock
}

func (m *carrierMock) GetTracking(ctx context.Context, carrierCode, trackNumber string) (*models.TrackingInfo, error) {
	args := m.Called(ctx, carrierCode, trackNumber)
	info, _ := args.Get(0).(*models.TrackingInfo)
	return info, args.Error(1)
}

type cacheMock struct {
	mock.Mock
}

func (m *cacheMock) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	b, _ := args.Get(0).([]byte)
	return b, args.Bool(1), args.Error(2)
}

func (m *cacheMock) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

type rlMock struct {
	mock.Mock
}

func (m *rlMock) AllowCarrier(ctx context.Context, carrierCode string, perMinute int64, now time.Time) (bool, error) {
	args := m.Called(ctx, carrierCode, perMinute, now)
	return args.Bool(0), args.Error(1)
}

type ServiceSuite struct {
	suite.Suite

	carrier *carrierMock
	cache   *cacheMock
	now     time.Time
	svc     *Service
}

func (s *ServiceSuite) SetupTest() {
	s.carrier = &carrierMock{}
	s.cache = &cacheMock{}
	s.now = time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	s.svc = New(s.carrier, s.cache, 0)
	s.svc.now = func() time.Time { return s.now }
}

func (s *ServiceSuite) entry(status models.TrackingStatus, age time.Duration) []byte {
	b, err := json.Marshal(cacheEntry{
		Info:      &models.TrackingInfo{TrackingNumber: "1Z1", Status: status},
		FetchedAt: s.now.Add(-age),
	})
	s.Require().NoError(err)
	return b
}

func (s *ServiceSuite) TestFetch_FreshCacheHitSkipsNetwork() {
	s.cache.On("Get", mock.Anything, "tracking:1Z1:info").Return(s.entry(models.TrackingStatusInTransit, 29*time.Minute), true, nil).Once()

	info, err := s.svc.Fetch(context.Background(), "1Z1")
	s.Require().NoError(err)
	s.Require().Equal(models.TrackingStatusInTransit, info.Status)
	s.carrier.AssertNotCalled(s.T(), "GetTracking", mock.Anything, mock.Anything, mock.Anything)
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestFetch_ExpiredEntryRefetchesAndStores() {
	s.cache.On("Get", mock.Anything, "tracking:1Z1:info").Return(s.entry(models.TrackingStatusInTransit, 30*time.Minute), true, nil).Once()
	s.carrier.On("GetTracking", mock.Anything, "ups", "1Z1").
		Return(&models.TrackingInfo{TrackingNumber: "1Z1", Status: models.TrackingStatusDelivered}, nil).Once()
	s.cache.On("Set", mock.Anything, "tracking:1Z1:info", mock.MatchedBy(func(b []byte) bool {
		var e cacheEntry
		return json.Unmarshal(b, &e) == nil && e.FetchedAt.Equal(s.now) && e.Info.Status == models.TrackingStatusDelivered
	}), DefaultTTL).Return(nil).Once()

	info, err := s.svc.Fetch(context.Background(), "1Z1")
	s.Require().NoError(err)
	s.Require().Equal(models.TrackingStatusDelivered, info.Status)
	s.carrier.AssertExpectations(s.T())
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestFetch_ErrorIsNotCached() {
	s.cache.On("Get", mock.Anything, mock.Anything).Return(nil, false, nil).Once()
	s.carrier.On("GetTracking", mock.Anything, "fedex", "123456789012").
		Return(nil, errors.Wrap(syncerr.ErrNetwork, "boom")).Once()

	_, err := s.svc.Fetch(context.Background(), "123456789012")
	s.Require().Error(err)
	s.Require().True(errors.Is(err, syncerr.ErrNetwork))
	s.cache.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestFetch_CorruptCacheEntryIsMiss() {
	s.cache.On("Get", mock.Anything, mock.Anything).Return([]byte("{"), true, nil).Once()
	s.carrier.On("GetTracking", mock.Anything, "shippo", "ABC").
		Return(&models.TrackingInfo{TrackingNumber: "ABC", Status: models.TrackingStatusPending}, nil).Once()
	s.cache.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("down")).Once()

	info, err := s.svc.Fetch(context.Background(), "ABC")
	s.Require().NoError(err)
	s.Require().Equal(models.TrackingStatusPending, info.Status)
}

func (s *ServiceSuite) TestFetch_RateLimitedSkipsProvider() {
	rl := &rlMock{}
	s.svc.WithRateLimit(rl, 5)
	s.cache.On("Get", mock.Anything, mock.Anything).Return(nil, false, nil).Once()
	rl.On("AllowCarrier", mock.Anything, "ups", int64(5), s.now).Return(false, nil).Once()

	_, err := s.svc.Fetch(context.Background(), "1Z1")
	s.Require().True(errors.Is(err, syncerr.ErrNetwork))
	s.carrier.AssertNotCalled(s.T(), "GetTracking", mock.Anything, mock.Anything, mock.Anything)
	rl.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestFetch_EmptyNumber() {
	_, err := s.svc.Fetch(context.Background(), "  ")
	s.Require().Error(err)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

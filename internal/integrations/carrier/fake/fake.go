package fake

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
)

var cycle = []models.TrackingStatus{
	models.TrackingStatusPending,
	models.TrackingStatusInTransit,
	models.TrackingStatusOutForDelivery,
	models.TrackingStatusDelivered,
	models.TrackingStatusInTransit,
}

// FakeClient: локальная заглушка провайдера трекинга для демо без API ключа.
// Статус детерминирован по (carrier, track_number).
type FakeClient struct {
	now func() time.Time
}

func New() *FakeClient {
	return &FakeClient{now: func() time.Time { return time.Now().UTC() }}
}

func (f *FakeClient) GetTracking(ctx context.Context, carrierCode, trackNumber string) (*models.TrackingInfo, error) {
	now := f.now()

	h := fnv.New32a()
	_, _ = h.Write([]byte(carrierCode))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(trackNumber))
	status := cycle[h.Sum32()%uint32(len(cycle))]

	return &models.TrackingInfo{
		TrackingNumber: trackNumber,
		Carrier:        carrierCode,
		Status:         status,
		Details: []models.TrackingDetail{
			{Date: now, Location: "Unknown Location", Activity: "fake carrier update"},
		},
		LastUpdated: now,
	}, nil
}

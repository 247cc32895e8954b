package carrier

import (
	"context"

	"github.com/BearBump/ReturnBox/internal/models"
)

type Client interface {
	GetTracking(ctx context.Context, carrierCode, trackNumber string) (*models.TrackingInfo, error)
}

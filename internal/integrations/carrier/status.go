package carrier

import (
	"strings"

	"github.com/BearBump/ReturnBox/internal/models"
)

var statusMap = map[string]models.TrackingStatus{
	"PRE_TRANSIT":      models.TrackingStatusPending,
	"TRANSIT":          models.TrackingStatusInTransit,
	"OUT_FOR_DELIVERY": models.TrackingStatusOutForDelivery,
	"DELIVERED":        models.TrackingStatusDelivered,
	"RETURNED":         models.TrackingStatusException,
	"FAILURE":          models.TrackingStatusException,
	"UNKNOWN":          models.TrackingStatusUnknown,
}

// MapStatus is total: any string it does not know maps to unknown.
func MapStatus(raw string) models.TrackingStatus {
	if s, ok := statusMap[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return s
	}
	return models.TrackingStatusUnknown
}

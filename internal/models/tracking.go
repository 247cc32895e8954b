package models

import "time"

// Канонические статусы доставки.
type TrackingStatus string

const (
	TrackingStatusUnknown        TrackingStatus = "unknown"
	TrackingStatusPending        TrackingStatus = "pending"
	TrackingStatusInTransit      TrackingStatus = "in_transit"
	TrackingStatusOutForDelivery TrackingStatus = "out_for_delivery"
	TrackingStatusDelivered      TrackingStatus = "delivered"
	TrackingStatusException      TrackingStatus = "exception"
)

type TrackingInfo struct {
	TrackingNumber string           `json:"tracking_number"`
	Carrier        string           `json:"carrier"`
	Status         TrackingStatus   `json:"status"`
	ETA            *time.Time       `json:"eta,omitempty"`
	Details        []TrackingDetail `json:"details"`
	LastUpdated    time.Time        `json:"last_updated"`
}

type TrackingDetail struct {
	Date     time.Time `json:"date"`
	Location string    `json:"location"`
	Activity string    `json:"activity"`
}

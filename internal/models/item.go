package models

import "time"

type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusShipped   RefundStatus = "shipped"
	RefundStatusReceived  RefundStatus = "received"
	RefundStatusProcessed RefundStatus = "processed"
	RefundStatusCompleted RefundStatus = "completed"
)

// TrackedItem is a return the user follows until the refund lands.
// Sync only ever touches TrackingInfo, LastSyncedAt and (on delivery) RefundStatus.
type TrackedItem struct {
	ID             string        `json:"id"`
	Retailer       string        `json:"retailer"`
	ProductName    string        `json:"product_name"`
	RefundAmount   float64       `json:"refund_amount"`
	RefundStatus   RefundStatus  `json:"refund_status"`
	TrackingNumber *string       `json:"tracking_number,omitempty"`
	TrackingInfo   *TrackingInfo `json:"tracking_info,omitempty"`
	LastSyncedAt   *time.Time    `json:"last_synced_at,omitempty"`
	Notes          string        `json:"notes,omitempty"`
	ImageIDs       []string      `json:"image_ids,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// NeedsRefresh reports whether the item is eligible for a tracking refresh at now.
func (it *TrackedItem) NeedsRefresh(now time.Time, staleAfter time.Duration) bool {
	if it.TrackingNumber == nil || *it.TrackingNumber == "" {
		return false
	}
	if it.RefundStatus == RefundStatusProcessed || it.RefundStatus == RefundStatusCompleted {
		return false
	}
	if it.LastSyncedAt == nil {
		return true
	}
	return now.Sub(*it.LastSyncedAt) > staleAfter
}

func (it *TrackedItem) CurrentStatus() *TrackingStatus {
	if it.TrackingInfo == nil {
		return nil
	}
	s := it.TrackingInfo.Status
	return &s
}

// CandidateReturn is a possible return found in the inbox. MessageID is the dedup key.
type CandidateReturn struct {
	MessageID    string    `json:"message_id"`
	Retailer     string    `json:"retailer"`
	ProductName  string    `json:"product_name"`
	RefundAmount float64   `json:"refund_amount"`
	EmailDate    time.Time `json:"email_date"`
	Subject      string    `json:"subject"`
	Snippet      string    `json:"snippet"`
}

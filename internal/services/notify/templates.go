package notify

import (
	"fmt"

	"github.com/BearBump/ReturnBox/internal/models"
)

const trackingTitle = "Return Status Update"

type template struct {
	body     string
	subtitle string
}

var trackingTemplates = map[models.TrackingStatus]template{
	models.TrackingStatusInTransit:      {body: "📦 Your return to %s is now in transit", subtitle: "%s"},
	models.TrackingStatusOutForDelivery: {body: "🚚 Your return to %s is out for delivery", subtitle: "%s"},
	models.TrackingStatusDelivered:      {body: "✅ Your return to %s has been delivered!", subtitle: "%s - Check for refund processing"},
	models.TrackingStatusException:      {body: "⚠️ Issue with your return to %s", subtitle: "%s - Check tracking details"},
	models.TrackingStatusPending:        {body: "⏳ Your return to %s is being processed", subtitle: "%s"},
}

func render(status models.TrackingStatus, retailer, product string) (body, subtitle string, ok bool) {
	t, ok := trackingTemplates[status]
	if !ok {
		return "", "", false
	}
	return fmt.Sprintf(t.body, retailer), fmt.Sprintf(t.subtitle, product), true
}

func candidatesText(count int) (title, body string) {
	if count == 1 {
		return "Returns Found in Inbox", "1 possible return was found in your email"
	}
	return "Returns Found in Inbox", fmt.Sprintf("%d possible returns were found in your email", count)
}

type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

func urgencyFor(daysLeft int) Urgency {
	switch {
	case daysLeft <= 1:
		return UrgencyCritical
	case daysLeft <= 3:
		return UrgencyUrgent
	default:
		return UrgencyNormal
	}
}

func deadlineText(u Urgency, daysLeft int, retailer, product string) (title, body string) {
	switch u {
	case UrgencyCritical:
		return "Final Return Warning!", fmt.Sprintf("🚨 Last day to return %s to %s!", product, retailer)
	case UrgencyUrgent:
		return "Return Deadline Soon!", fmt.Sprintf("⚠️ Only %d days left to return %s to %s", daysLeft, product, retailer)
	default:
		return "Return Deadline Reminder", fmt.Sprintf("⏰ %d days left to return %s to %s", daysLeft, product, retailer)
	}
}

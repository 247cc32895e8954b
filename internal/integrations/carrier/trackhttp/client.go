package trackhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/ReturnBox/internal/integrations/carrier"
	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/syncerr"
	"github.com/pkg/errors"
)

const (
	DefaultBaseURL    = "https://api.goshippo.com"
	DefaultAuthScheme = "Bearer"

	unknownLocation = "Unknown Location"
	defaultActivity = "Status update"
)

type Client struct {
	baseURL    string
	apiKey     string
	authScheme string
	httpc      *http.Client
	now        func() time.Time
}

func New(baseURL, apiKey, authScheme string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if authScheme == "" {
		authScheme = DefaultAuthScheme
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		authScheme: authScheme,
		httpc: &http.Client{
			Timeout: timeout,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

type respLocation struct {
	City    *string `json:"city"`
	State   *string `json:"state"`
	Zip     *string `json:"zip"`
	Country *string `json:"country"`
}

type respStatus struct {
	Status        string        `json:"status"`
	StatusDetails *string       `json:"status_details"`
	StatusDate    string        `json:"status_date"`
	Location      *respLocation `json:"location"`
}

type respBody struct {
	Carrier         string       `json:"carrier"`
	TrackingNumber  string       `json:"tracking_number"`
	ETA             *string      `json:"eta"`
	TrackingStatus  respStatus   `json:"tracking_status"`
	TrackingHistory []respStatus `json:"tracking_history"`
}

func (c *Client) GetTracking(ctx context.Context, carrierCode, trackNumber string) (*models.TrackingInfo, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	u.Path = strings.TrimRight(u.Path, "/") + fmt.Sprintf("/tracks/%s/%s", url.PathEscape(carrierCode), url.PathEscape(trackNumber))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", c.authScheme+" "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(syncerr.ErrNetwork, "do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errors.WithStack(&syncerr.Unauthorized{StatusCode: resp.StatusCode})
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.Wrap(syncerr.ErrNetwork, "tracking provider rate limit (429)")
	}
	if resp.StatusCode/100 != 2 {
		return nil, errors.Wrapf(syncerr.ErrNetwork, "tracking provider http %d", resp.StatusCode)
	}

	var rb respBody
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		return nil, errors.Wrapf(syncerr.ErrDecode, "decode: %v", err)
	}

	return c.toInfo(rb, trackNumber), nil
}

func (c *Client) toInfo(rb respBody, trackNumber string) *models.TrackingInfo {
	now := c.now()

	details := make([]models.TrackingDetail, 0, len(rb.TrackingHistory))
	for _, h := range rb.TrackingHistory {
		activity := defaultActivity
		if h.StatusDetails != nil && *h.StatusDetails != "" {
			activity = *h.StatusDetails
		}
		details = append(details, models.TrackingDetail{
			Date:     parseDate(h.StatusDate, now),
			Location: formatLocation(h.Location),
			Activity: activity,
		})
	}

	var eta *time.Time
	if rb.ETA != nil {
		if t, err := time.Parse(time.RFC3339, *rb.ETA); err == nil {
			t = t.UTC()
			eta = &t
		}
	}

	number := rb.TrackingNumber
	if number == "" {
		number = trackNumber
	}

	return &models.TrackingInfo{
		TrackingNumber: number,
		Carrier:        rb.Carrier,
		Status:         carrier.MapStatus(rb.TrackingStatus.Status),
		ETA:            eta,
		Details:        details,
		LastUpdated:    now,
	}
}

func parseDate(s string, fallback time.Time) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fallback
	}
	return t.UTC()
}

// formatLocation renders "City, State Zip"; with none of those it falls back to country.
func formatLocation(l *respLocation) string {
	if l == nil {
		return unknownLocation
	}
	var b strings.Builder
	if l.City != nil && *l.City != "" {
		b.WriteString(*l.City)
	}
	if l.State != nil && *l.State != "" {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(*l.State)
	}
	if l.Zip != nil && *l.Zip != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(*l.Zip)
	}
	if b.Len() > 0 {
		return b.String()
	}
	if l.Country != nil && *l.Country != "" {
		return *l.Country
	}
	return unknownLocation
}

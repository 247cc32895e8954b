package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/ReturnBox/internal/syncerr"
	"github.com/pkg/errors"
)

const DefaultBaseURL = "https://gmail.googleapis.com"

// Client talks to the mailbox REST API on behalf of the signed-in user.
// It is stateless about tokens: callers pass a fresh access token per call.
type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type ListPage struct {
	Messages      []MessageRef `json:"messages"`
	NextPageToken string       `json:"nextPageToken"`
}

type Profile struct {
	EmailAddress  string `json:"emailAddress"`
	MessagesTotal int    `json:"messagesTotal"`
}

func (c *Client) ListMessages(ctx context.Context, token, query, pageToken string) (*ListPage, error) {
	q := url.Values{}
	q.Set("q", query)
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	var page ListPage
	if err := c.get(ctx, token, "/gmail/v1/users/me/messages", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) GetMessage(ctx context.Context, token, id string) (*Message, error) {
	q := url.Values{}
	q.Set("format", "full")
	var msg Message
	if err := c.get(ctx, token, "/gmail/v1/users/me/messages/"+url.PathEscape(id), q, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) GetProfile(ctx context.Context, token string) (*Profile, error) {
	var p Profile
	if err := c.get(ctx, token, "/gmail/v1/users/me/profile", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) get(ctx context.Context, token, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrapf(syncerr.ErrNetwork, "do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return errors.WithStack(&syncerr.Unauthorized{StatusCode: resp.StatusCode})
	}
	if resp.StatusCode/100 != 2 {
		return errors.Wrap(syncerr.ErrNetwork, fmt.Sprintf("inbox http %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(syncerr.ErrDecode, "decode: %v", err)
	}
	return nil
}

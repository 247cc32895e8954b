package scanner

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/ReturnBox/internal/integrations/inbox"
	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/syncerr"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const DefaultQuery = "subject:(return) newer_than:100d"

type TokenSource interface {
	HasSession() bool
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

type MailClient interface {
	ListMessages(ctx context.Context, token, query, pageToken string) (*inbox.ListPage, error)
	GetMessage(ctx context.Context, token, id string) (*inbox.Message, error)
}

// Scanner finds candidate returns in the mailbox. Deduplication against
// already seen messages is left to the caller.
type Scanner struct {
	tokens TokenSource
	mail   MailClient

	query       string
	maxPages    int
	concurrency int

	now func() time.Time
}

func New(tokens TokenSource, mail MailClient) *Scanner {
	return &Scanner{
		tokens:      tokens,
		mail:        mail,
		query:       DefaultQuery,
		maxPages:    10,
		concurrency: 5,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Scanner) WithSettings(query string, maxPages, concurrency int) *Scanner {
	if query != "" {
		s.query = query
	}
	if maxPages > 0 {
		s.maxPages = maxPages
	}
	if concurrency > 0 {
		s.concurrency = concurrency
	}
	return s
}

// Ready reports whether a session exists to scan with.
func (s *Scanner) Ready() bool {
	return s.tokens != nil && s.tokens.HasSession()
}

func (s *Scanner) Scan(ctx context.Context) ([]models.CandidateReturn, error) {
	if !s.Ready() {
		return nil, errors.Wrap(syncerr.ErrAuth, "no inbox session")
	}
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	ids, err := s.search(ctx, token)
	if isUnauthorized(err) {
		// токен отозван или протух раньше срока: одна попытка обновить
		if token, err = s.tokens.ForceRefresh(ctx); err != nil {
			return nil, err
		}
		ids, err = s.search(ctx, token)
	}
	if err != nil {
		return nil, err
	}

	msgs := s.fetchAll(ctx, token, ids)

	out := make([]models.CandidateReturn, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if c, ok := s.toCandidate(m); ok {
			out = append(out, c)
		}
	}
	slog.Info("inbox scan done", "messages", len(ids), "candidates", len(out))
	return out, nil
}

func (s *Scanner) search(ctx context.Context, token string) ([]string, error) {
	var ids []string
	seen := make(map[string]struct{})
	pageToken := ""
	for page := 0; page < s.maxPages; page++ {
		res, err := s.mail.ListMessages(ctx, token, s.query, pageToken)
		if err != nil {
			return nil, err
		}
		for _, ref := range res.Messages {
			if _, dup := seen[ref.ID]; dup || ref.ID == "" {
				continue
			}
			seen[ref.ID] = struct{}{}
			ids = append(ids, ref.ID)
		}
		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}
	return ids, nil
}

func (s *Scanner) fetchAll(ctx context.Context, token string, ids []string) []*inbox.Message {
	out := make([]*inbox.Message, len(ids))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			m, err := s.mail.GetMessage(ctx, token, id)
			if err != nil {
				slog.Warn("fetch message", "message_id", id, "error", err.Error())
				return nil
			}
			out[i] = m
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Scanner) toCandidate(m *inbox.Message) (models.CandidateReturn, bool) {
	subject := m.Header("Subject")
	body := m.Body()
	if !IsReturnEmail(subject, body) {
		return models.CandidateReturn{}, false
	}

	date, ok := m.InternalTime()
	if !ok {
		if date, ok = ParseHeaderDate(m.Header("Date")); !ok {
			date = s.now()
		}
	}

	return models.CandidateReturn{
		MessageID:    m.ID,
		Retailer:     ExtractRetailer(m.Header("From")),
		ProductName:  ExtractProduct(subject, body),
		RefundAmount: ExtractAmount(body),
		EmailDate:    date,
		Subject:      subject,
		Snippet:      m.Snippet,
	}, true
}

func isUnauthorized(err error) bool {
	var ua *syncerr.Unauthorized
	return err != nil && errors.As(err, &ua)
}

// Package gmail provides the Gmail mailbox adapter.
package gmail

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"digest_server/core/domain"
	"digest_server/core/port/out"
	"digest_server/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	// fetchBatchSize bounds how many messages are requested in parallel
	// per sub-batch to stay under Gmail per-user rate limits.
	fetchBatchSize = 30
)

// Factory builds per-user Gmail providers from stored OAuth tokens.
type Factory struct {
	users out.UserRepository
	oauth *oauth2.Config
	log   zerolog.Logger
}

// NewFactory creates a provider factory. clientID and clientSecret are the
// Google OAuth app credentials used to refresh user tokens.
func NewFactory(users out.UserRepository, clientID, clientSecret string, log zerolog.Logger) *Factory {
	return &Factory{
		users: users,
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmailapi.GmailReadonlyScope},
		},
		log: log.With().Str("component", "gmail_provider").Logger(),
	}
}

// ProviderFor returns an authenticated provider for the user. Rotated access
// tokens are written back to the user store so later cycles skip the refresh
// round trip.
func (f *Factory) ProviderFor(ctx context.Context, userID uuid.UUID) (out.MailboxProvider, error) {
	creds, err := f.users.GetCredentials(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("load mail credentials", err)
	}
	if creds == nil {
		return nil, apperr.Auth("gmail account not connected", nil)
	}

	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.Expiry,
	}

	ts := &persistingTokenSource{
		inner:  f.oauth.TokenSource(ctx, token),
		users:  f.users,
		userID: userID,
		last:   creds.AccessToken,
		log:    f.log,
	}

	service, err := gmailapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, apperr.Upstream("create gmail client", err)
	}

	return &Provider{
		service: service,
		log:     f.log.With().Stringer("user_id", userID).Logger(),
	}, nil
}

// persistingTokenSource wraps the refreshing token source and saves any
// rotated access token. Persistence failures are logged but never block the
// request already in flight.
type persistingTokenSource struct {
	mu     sync.Mutex
	inner  oauth2.TokenSource
	users  out.UserRepository
	userID uuid.UUID
	last   string
	log    zerolog.Logger
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.inner.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.users.SaveAccessToken(context.Background(), s.userID, tok.AccessToken, tok.Expiry); err != nil {
			s.log.Warn().Err(err).Stringer("user_id", s.userID).Msg("failed to persist rotated access token")
		}
	}
	return tok, nil
}

// Provider implements out.MailboxProvider against the Gmail API.
type Provider struct {
	service *gmailapi.Service
	log     zerolog.Logger
}

// DateQuery maps a digest frequency to the Gmail search window.
func DateQuery(freq domain.DigestFrequency) string {
	switch freq {
	case domain.FrequencyWeekly:
		return "newer_than:7d"
	case domain.FrequencyBiweekly:
		return "newer_than:14d"
	case domain.FrequencyMonthly:
		return "newer_than:30d"
	default:
		return "newer_than:1d"
	}
}

// ListMessageIDs lists message ids matching the frequency's lookback window,
// newest first, as Gmail returns them.
func (p *Provider) ListMessageIDs(ctx context.Context, maxResults int64, freq domain.DigestFrequency) ([]string, error) {
	resp, err := p.service.Users.Messages.List("me").
		Q(DateQuery(freq)).
		MaxResults(maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapGmailError("list messages", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// FetchMessages fetches metadata for the given ids in bounded sub-batches.
// Ids that fail to fetch are logged and dropped; the rest come back in input
// order.
func (p *Provider) FetchMessages(ctx context.Context, ids []string) ([]*domain.ParsedEmail, error) {
	emails := make([]*domain.ParsedEmail, 0, len(ids))

	for start := 0; start < len(ids); start += fetchBatchSize {
		end := start + fetchBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := p.fetchBatch(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		emails = append(emails, batch...)
	}

	return emails, nil
}

func (p *Provider) fetchBatch(ctx context.Context, ids []string) ([]*domain.ParsedEmail, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Upstream("fetch messages", err)
	}

	results := make([]*domain.ParsedEmail, len(ids))
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		go func(idx int, messageID string) {
			defer wg.Done()
			email, err := p.fetchOne(ctx, messageID)
			if err != nil {
				p.log.Warn().Err(err).Str("message_id", messageID).Msg("failed to fetch message, dropping")
				return
			}
			results[idx] = email
		}(i, id)
	}
	wg.Wait()

	emails := make([]*domain.ParsedEmail, 0, len(ids))
	for _, e := range results {
		if e != nil {
			emails = append(emails, e)
		}
	}
	return emails, nil
}

func (p *Provider) fetchOne(ctx context.Context, messageID string) (*domain.ParsedEmail, error) {
	msg, err := p.service.Users.Messages.Get("me", messageID).
		Format("metadata").
		MetadataHeaders("From", "To", "Subject", "Date").
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapGmailError("get message", err)
	}
	return parseMetadata(msg), nil
}

var fromPattern = regexp.MustCompile(`^(.+?)\s*<(.+?)>$`)

// parseMetadata converts a metadata-format Gmail message into the domain
// shape. The snippet doubles as the body; full bodies are never fetched.
func parseMetadata(msg *gmailapi.Message) *domain.ParsedEmail {
	email := &domain.ParsedEmail{
		MessageID: msg.Id,
		ThreadID:  msg.ThreadId,
		Snippet:   msg.Snippet,
		Body:      msg.Snippet,
		Labels:    msg.LabelIds,
		IsRead:    true,
	}
	for _, label := range msg.LabelIds {
		if label == "UNREAD" {
			email.IsRead = false
		}
	}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				email.FromName, email.FromEmail = ParseFromHeader(h.Value)
			case "to":
				email.To = h.Value
			case "subject":
				email.Subject = h.Value
			case "date":
				email.Date = h.Value
			}
		}
	}

	return email
}

// ParseFromHeader splits `Display Name <addr>` into name and address. A bare
// address is returned as both.
func ParseFromHeader(raw string) (name, addr string) {
	m := fromPattern.FindStringSubmatch(raw)
	if m == nil {
		return raw, raw
	}
	return strings.ReplaceAll(m[1], `"`, ""), m[2]
}

func mapGmailError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == 401 || gerr.Code == 403) {
		return apperr.Auth(op+": gmail credentials rejected", err)
	}
	return apperr.Upstream(op, err)
}

var _ out.MailboxProvider = (*Provider)(nil)
var _ out.MailboxProviderFactory = (*Factory)(nil)

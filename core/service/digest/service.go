package digest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"digest_server/core/domain"
	"digest_server/core/port/out"
	"digest_server/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// maxMessages bounds the live snapshot processed per generation.
	maxMessages = 100
	// chunkWidth is the fetch+classify fan-out unit for new ids.
	chunkWidth = 20
	// generateTimeout is the overall deadline for one generation cycle.
	generateTimeout = 90 * time.Second
	// lockTTL bounds how long a crashed generation can hold the
	// per-user lock.
	lockTTL = 2 * time.Minute

	cacheTTL = 15 * time.Minute
)

// BatchClassifier classifies message batches; results are matched back to
// messages by id.
type BatchClassifier interface {
	ClassifyBatch(ctx context.Context, emails []*domain.ParsedEmail) ([]domain.CategorizedEmail, error)
}

// Service drives the digest generation pipeline.
type Service struct {
	providers  out.MailboxProviderFactory
	classifier BatchClassifier
	summarizer *Summarizer
	emails     out.EmailRepository
	digests    out.DigestRepository
	locker     out.GenerationLocker
	cache      out.DigestCache
	push       out.PushNotifier
	log        zerolog.Logger
}

// NewService wires the pipeline. locker, cache, and push may be nil; the
// corresponding behavior (single-flight, read cache, notification) is then
// disabled.
func NewService(
	providers out.MailboxProviderFactory,
	classifier BatchClassifier,
	summarizer *Summarizer,
	emails out.EmailRepository,
	digests out.DigestRepository,
	locker out.GenerationLocker,
	cache out.DigestCache,
	push out.PushNotifier,
	log zerolog.Logger,
) *Service {
	return &Service{
		providers:  providers,
		classifier: classifier,
		summarizer: summarizer,
		emails:     emails,
		digests:    digests,
		locker:     locker,
		cache:      cache,
		push:       push,
		log:        log.With().Str("component", "digest_service").Logger(),
	}
}

// GenerateDigest builds a fresh digest for the user over the frequency's
// lookback window, reusing cached classifications for message ids that are
// still live and purging records that fell out of the window.
func (s *Service) GenerateDigest(ctx context.Context, userID uuid.UUID, frequency domain.DigestFrequency) (*domain.DigestSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	log := s.log.With().Stringer("user_id", userID).Str("frequency", string(frequency)).Logger()

	if s.locker != nil {
		ok, err := s.locker.Acquire(ctx, userID, lockTTL)
		if err != nil {
			return nil, apperr.Persistence("acquire generation lock", err)
		}
		if !ok {
			return nil, apperr.GenerationInProgress()
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), userID); err != nil {
				log.Warn().Err(err).Msg("failed to release generation lock")
			}
		}()
	}

	provider, err := s.providers.ProviderFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	liveIDs, err := provider.ListMessageIDs(ctx, maxMessages, frequency)
	if err != nil {
		return nil, err
	}

	storedRecords, err := s.emails.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("load stored records", err)
	}

	if len(liveIDs) == 0 {
		// A transient empty list from the provider must not evict the
		// whole cache, so the purge is skipped when records exist.
		if len(storedRecords) > 0 {
			log.Warn().Int("stored", len(storedRecords)).
				Msg("live id list empty with non-empty cache, skipping purge")
		}
		return emptyDigest(), nil
	}

	part := Reconcile(liveIDs, storedRecords)
	log.Info().
		Int("live", len(liveIDs)).
		Int("cache_hits", len(part.Cached)).
		Int("stale", len(part.Stale)).
		Int("new", len(part.NewIDs)).
		Msg("reconciled live ids against stored records")

	newEmails, newCategorized, err := s.processNewIDs(ctx, provider, part.NewIDs)
	if err != nil {
		return nil, err
	}

	cachedEmails, cachedCategorized := cachedViews(part.Cached)

	allEmails := append(cachedEmails, newEmails...)
	allCategorized := append(cachedCategorized, newCategorized...)

	summary := s.summarizer.Summarize(ctx, allEmails, allCategorized)

	s.commit(ctx, userID, frequency, newEmails, newCategorized, part.Stale, summary)

	if s.push != nil {
		s.notify(ctx, userID, frequency, summary)
	}

	return summary, nil
}

// processNewIDs fans fetch+classify out over fixed-size chunks. Chunks run
// fully parallel (the classifier bounds its own upstream concurrency) and a
// single chunk failure aborts the whole generation. Outputs are flattened in
// chunk-index order regardless of completion order.
func (s *Service) processNewIDs(ctx context.Context, provider out.MailboxProvider, newIDs []string) ([]*domain.ParsedEmail, []domain.CategorizedEmail, error) {
	if len(newIDs) == 0 {
		return nil, nil, nil
	}

	chunks := splitChunks(newIDs, chunkWidth)

	type chunkResult struct {
		emails      []*domain.ParsedEmail
		categorized []domain.CategorizedEmail
	}
	results := make([]chunkResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			fetched, err := provider.FetchMessages(gctx, chunk)
			if err != nil {
				return err
			}
			categorized, err := s.classifier.ClassifyBatch(gctx, fetched)
			if err != nil {
				return err
			}
			results[i] = chunkResult{emails: fetched, categorized: categorized}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var emails []*domain.ParsedEmail
	var categorized []domain.CategorizedEmail
	for _, r := range results {
		emails = append(emails, r.emails...)
		categorized = append(categorized, r.categorized...)
	}
	return emails, categorized, nil
}

// cachedViews reconstructs the email and classification views from stored
// records, field for field. No re-fetch, no re-classification.
func cachedViews(cached []domain.StoredEmail) ([]*domain.ParsedEmail, []domain.CategorizedEmail) {
	emails := make([]*domain.ParsedEmail, len(cached))
	categorized := make([]domain.CategorizedEmail, len(cached))
	for i, rec := range cached {
		emails[i] = &domain.ParsedEmail{
			MessageID: rec.MessageID,
			FromName:  rec.FromName,
			FromEmail: rec.FromEmail,
			Subject:   rec.Subject,
			Snippet:   rec.Snippet,
			Date:      rec.EmailDate,
			IsRead:    rec.IsRead,
		}
		categorized[i] = domain.CategorizedEmail{
			MessageID:      rec.MessageID,
			Category:       rec.Category,
			Confidence:     rec.Confidence,
			Summary:        rec.AISummary,
			Priority:       rec.Priority,
			ActionRequired: rec.ActionRequired,
		}
	}
	return emails, categorized
}

// commit performs the three logically independent writes concurrently:
// upsert new records, delete stale records, replace the latest digest.
// Each failure is logged and does not abort the others; the returned digest
// was computed before commit, so a failed write only reduces cache
// effectiveness for the next cycle.
func (s *Service) commit(
	ctx context.Context,
	userID uuid.UUID,
	frequency domain.DigestFrequency,
	newEmails []*domain.ParsedEmail,
	newCategorized []domain.CategorizedEmail,
	stale []domain.StoredEmail,
	summary *domain.DigestSummary,
) {
	log := s.log.With().Stringer("user_id", userID).Logger()

	records := joinRecords(userID, newEmails, newCategorized)

	staleIDs := make([]string, len(stale))
	for i, rec := range stale {
		staleIDs[i] = rec.MessageID
	}

	generatedAt, err := time.Parse(time.RFC3339, summary.GeneratedAt)
	if err != nil {
		generatedAt = time.Now().UTC()
	}
	digestRec := &domain.DigestRecord{
		UserID:      userID,
		Frequency:   frequency,
		TotalEmails: summary.TotalEmails,
		UnreadCount: summary.UnreadCount,
		Categories:  summary.Categories,
		Highlights:  summary.Highlights,
		ActionItems: summary.ActionItems,
		GeneratedAt: generatedAt,
	}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		if len(records) == 0 {
			return
		}
		if err := s.emails.UpsertBatch(ctx, records); err != nil {
			log.Error().Err(apperr.Persistence("upsert email records", err)).
				Int("count", len(records)).
				Msg("commit write failed")
		}
	}()

	go func() {
		defer wg.Done()
		if len(staleIDs) == 0 {
			return
		}
		if err := s.emails.DeleteByMessageIDs(ctx, userID, staleIDs); err != nil {
			log.Error().Err(apperr.Persistence("delete stale records", err)).
				Int("count", len(staleIDs)).
				Msg("commit write failed")
		}
	}()

	go func() {
		defer wg.Done()
		if err := s.digests.ReplaceLatest(ctx, digestRec); err != nil {
			log.Error().Err(apperr.Persistence("replace latest digest", err)).
				Msg("commit write failed")
		}
	}()

	wg.Wait()

	if s.cache != nil {
		s.cache.SetLatest(ctx, userID, summary, cacheTTL)
	}
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, frequency domain.DigestFrequency, summary *domain.DigestSummary) {
	title := fmt.Sprintf("Your %s inbox digest", frequency)
	body := fmt.Sprintf("%d emails summarized • %d action items", summary.TotalEmails, len(summary.ActionItems))
	data := map[string]string{"type": "digest", "frequency": string(frequency)}

	if err := s.push.Send(ctx, userID, title, body, data); err != nil {
		s.log.Warn().Err(err).Stringer("user_id", userID).Msg("push notification failed")
	}
}

// joinRecords merges classification results with their raw messages into
// persistable records, keyed by message id.
func joinRecords(userID uuid.UUID, emails []*domain.ParsedEmail, categorized []domain.CategorizedEmail) []domain.StoredEmail {
	byID := make(map[string]*domain.ParsedEmail, len(emails))
	for _, e := range emails {
		byID[e.MessageID] = e
	}

	records := make([]domain.StoredEmail, 0, len(categorized))
	for _, cat := range categorized {
		email, ok := byID[cat.MessageID]
		if !ok {
			continue
		}
		emailDate := email.Date
		if emailDate == "" {
			emailDate = time.Now().UTC().Format(time.RFC3339)
		}
		records = append(records, domain.StoredEmail{
			UserID:         userID,
			MessageID:      cat.MessageID,
			FromName:       email.FromName,
			FromEmail:      email.FromEmail,
			Subject:        email.Subject,
			Snippet:        email.Snippet,
			Category:       cat.Category,
			Priority:       cat.Priority,
			AISummary:      cat.Summary,
			Confidence:     cat.Confidence,
			ActionRequired: cat.ActionRequired,
			IsRead:         email.IsRead,
			EmailDate:      emailDate,
		})
	}
	return records
}

func splitChunks(ids []string, width int) [][]string {
	var chunks [][]string
	for start := 0; start < len(ids); start += width {
		end := start + width
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func emptyDigest() *domain.DigestSummary {
	return &domain.DigestSummary{
		TotalEmails: 0,
		UnreadCount: 0,
		Categories:  []domain.CategorySummary{},
		Highlights:  []string{"No new emails in this period."},
		ActionItems: []string{},
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// =============================================================================
// Read paths
// =============================================================================

// GetLatestDigest returns the user's latest digest, or nil when none exists.
func (s *Service) GetLatestDigest(ctx context.Context, userID uuid.UUID) (*domain.DigestSummary, error) {
	if s.cache != nil {
		if cached, ok := s.cache.GetLatest(ctx, userID); ok {
			return cached, nil
		}
	}

	rec, err := s.digests.GetLatest(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("load latest digest", err)
	}
	if rec == nil {
		return nil, nil
	}

	summary := rec.Summary()
	if s.cache != nil {
		s.cache.SetLatest(ctx, userID, summary, cacheTTL)
	}
	return summary, nil
}

// GetDigestHistory returns recent digests, newest first.
func (s *Service) GetDigestHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.DigestRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	history, err := s.digests.History(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Persistence("load digest history", err)
	}
	return history, nil
}

// GetStoredEmails returns stored records, optionally filtered by category.
func (s *Service) GetStoredEmails(ctx context.Context, userID uuid.UUID, category string, limit int) ([]domain.StoredEmail, error) {
	if limit <= 0 {
		limit = 50
	}
	records, err := s.emails.ListByUserAndCategory(ctx, userID, category, limit)
	if err != nil {
		return nil, apperr.Persistence("load stored emails", err)
	}
	return records, nil
}

// GetEmailStats computes per-category counts over the stored records.
func (s *Service) GetEmailStats(ctx context.Context, userID uuid.UUID) (*domain.EmailStats, error) {
	records, err := s.emails.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("load stored emails", err)
	}

	stats := &domain.EmailStats{ByCategory: make(map[domain.EmailCategory]int)}
	for _, rec := range records {
		stats.Total++
		stats.ByCategory[rec.Category]++
		if !rec.IsRead {
			stats.Unread++
		}
		if rec.ActionRequired {
			stats.ActionRequired++
		}
	}
	return stats, nil
}

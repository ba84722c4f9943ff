// Package classifier sends batches of message summaries to the AI
// classification service and parses the structured output, falling back to a
// deterministic default classification when the service fails.
package classifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"digest_server/core/domain"
	"digest_server/core/port/out"
	"digest_server/pkg/apperr"

	"github.com/rs/zerolog"
)

const (
	// batchWidth caps how many messages go into one upstream call.
	batchWidth = 10
	// maxConcurrent caps in-flight sub-batch calls to the AI service.
	maxConcurrent = 5

	maxSnippetLen = 300
)

// Classifier classifies message batches through an LLM port.
type Classifier struct {
	llm out.LLMClient
	log zerolog.Logger
}

// New creates a Classifier.
func New(llm out.LLMClient, log zerolog.Logger) *Classifier {
	return &Classifier{
		llm: llm,
		log: log.With().Str("component", "classifier").Logger(),
	}
}

// ClassifyBatch classifies the given messages, one result per input message.
// Results are order-independent; callers match them back by message id.
//
// Upstream failures degrade: each message in a failed sub-batch receives the
// deterministic fallback classification instead of failing the digest. The
// only error path is a context that is already done on entry.
func (c *Classifier) ClassifyBatch(ctx context.Context, emails []*domain.ParsedEmail) ([]domain.CategorizedEmail, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, apperr.Upstream("classification", err)
	}

	batches := splitBatches(emails, batchWidth)
	results := make([][]domain.CategorizedEmail, len(batches))

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrent)

	for i, batch := range batches {
		wg.Add(1)
		go func(idx int, batch []*domain.ParsedEmail) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = c.classifySubBatch(ctx, batch)
		}(i, batch)
	}
	wg.Wait()

	flat := make([]domain.CategorizedEmail, 0, len(emails))
	for _, r := range results {
		flat = append(flat, r...)
	}
	return flat, nil
}

func (c *Classifier) classifySubBatch(ctx context.Context, batch []*domain.ParsedEmail) []domain.CategorizedEmail {
	raw, err := c.llm.CompleteJSON(ctx, buildClassifyPrompt(batch))
	if err != nil {
		c.log.Warn().Err(err).
			Int("count", len(batch)).
			Str("event", "classification_fallback").
			Msg("upstream classification failed, using deterministic fallback")
		return fallbackBatch(batch)
	}

	parsed, err := parseBatchResponse(raw, batch)
	if err != nil {
		c.log.Warn().Err(err).
			Int("count", len(batch)).
			Str("event", "classification_fallback").
			Msg("classification response failed validation, using deterministic fallback")
		return fallbackBatch(batch)
	}
	return parsed
}

// Fallback returns the deterministic degraded-mode classification for one
// message: category=other, confidence=0, summary=snippet, priority=low.
func Fallback(email *domain.ParsedEmail) domain.CategorizedEmail {
	return domain.CategorizedEmail{
		MessageID:      email.MessageID,
		Category:       domain.CategoryOther,
		Confidence:     0,
		Summary:        email.Snippet,
		Priority:       domain.PriorityLow,
		ActionRequired: false,
	}
}

func fallbackBatch(batch []*domain.ParsedEmail) []domain.CategorizedEmail {
	results := make([]domain.CategorizedEmail, len(batch))
	for i, e := range batch {
		results[i] = Fallback(e)
	}
	return results
}

func splitBatches(emails []*domain.ParsedEmail, width int) [][]*domain.ParsedEmail {
	var batches [][]*domain.ParsedEmail
	for start := 0; start < len(emails); start += width {
		end := start + width
		if end > len(emails) {
			end = len(emails)
		}
		batches = append(batches, emails[start:end])
	}
	return batches
}

// =============================================================================
// Prompt
// =============================================================================

type promptEmail struct {
	MessageID string `json:"messageId"`
	From      string `json:"from"`
	FromEmail string `json:"fromEmail"`
	Subject   string `json:"subject"`
	Snippet   string `json:"snippet"`
}

func buildClassifyPrompt(batch []*domain.ParsedEmail) string {
	summaries := make([]promptEmail, len(batch))
	for i, e := range batch {
		summaries[i] = promptEmail{
			MessageID: e.MessageID,
			From:      e.FromName,
			FromEmail: e.FromEmail,
			Subject:   e.Subject,
			Snippet:   truncate(e.Snippet, maxSnippetLen),
		}
	}
	payload, _ := json.Marshal(summaries)

	var sb strings.Builder
	sb.WriteString(`You are an expert email classifier. Classify each email below.

For each email return:
- category: one of "financial", "newsletters", "personal", "work", "social", "promotions", "updates", "other"
- confidence: float 0-1
- summary: one sentence summary
- priority: "high", "medium", or "low"
- actionRequired: boolean

Classification rules:
- "financial": banks, payments, invoices, billing
- "newsletters": subscribed digests, editorial content
- "personal": friends, family, personal conversations
- "work": colleagues, project tools, meetings, HR
- "social": social media notifications
- "promotions": marketing, deals, sales
- "updates": shipping, security, password resets, app updates
- "other": anything else

Emails:
`)
	sb.Write(payload)
	sb.WriteString(`

Respond with this exact JSON format:
{
  "emails": [
    {"messageId": "...", "category": "...", "confidence": 0.0, "summary": "...", "priority": "low", "actionRequired": false}
  ]
}`)
	return sb.String()
}

// =============================================================================
// Parse and validate
// =============================================================================

type batchItem struct {
	MessageID      string  `json:"messageId"`
	Category       string  `json:"category"`
	Confidence     float64 `json:"confidence"`
	Summary        string  `json:"summary"`
	Priority       string  `json:"priority"`
	ActionRequired bool    `json:"actionRequired"`
}

type batchResponse struct {
	Emails []batchItem `json:"emails"`
}

// parseBatchResponse validates the raw model output against the input batch.
// Unknown categories coerce to "other", unknown priorities to "low", and
// confidence is clamped to [0,1]. Messages missing from the response get the
// deterministic fallback. A response matching none of the input ids is
// treated as schema-violating.
func parseBatchResponse(raw string, batch []*domain.ParsedEmail) ([]domain.CategorizedEmail, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var resp batchResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("malformed classification response: %w", err)
	}

	byID := make(map[string]batchItem, len(resp.Emails))
	for _, item := range resp.Emails {
		byID[item.MessageID] = item
	}

	matched := 0
	results := make([]domain.CategorizedEmail, len(batch))
	for i, email := range batch {
		item, ok := byID[email.MessageID]
		if !ok {
			results[i] = Fallback(email)
			continue
		}
		matched++

		summary := item.Summary
		if summary == "" {
			summary = email.Snippet
		}
		results[i] = domain.CategorizedEmail{
			MessageID:      email.MessageID,
			Category:       domain.ParseCategory(item.Category),
			Confidence:     clamp01(item.Confidence),
			Summary:        summary,
			Priority:       domain.ParsePriority(item.Priority),
			ActionRequired: item.ActionRequired,
		}
	}

	if matched == 0 {
		return nil, fmt.Errorf("classification response matched none of %d input ids", len(batch))
	}
	return results, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// truncate shortens s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

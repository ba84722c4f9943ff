package digest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"digest_server/core/domain"
	"digest_server/core/port/out"

	"github.com/rs/zerolog"
)

const maxHighlights = 5

// Summarizer turns merged classification + email data into the aggregate
// digest. Rollups are computed deterministically; highlights and action
// items come from one AI call with a non-AI fallback.
type Summarizer struct {
	llm out.LLMClient
	log zerolog.Logger
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(llm out.LLMClient, log zerolog.Logger) *Summarizer {
	return &Summarizer{
		llm: llm,
		log: log.With().Str("component", "summarizer").Logger(),
	}
}

// Summarize builds the DigestSummary for the merged email and
// classification sets. Input order matters: top-email ties within a
// category are broken by position in the merged list.
func (s *Summarizer) Summarize(ctx context.Context, emails []*domain.ParsedEmail, categorized []domain.CategorizedEmail) *domain.DigestSummary {
	byID := make(map[string]*domain.ParsedEmail, len(emails))
	unread := 0
	for _, e := range emails {
		byID[e.MessageID] = e
		if !e.IsRead {
			unread++
		}
	}

	categories := buildRollups(byID, categorized)
	highlights, actionItems := s.highlightsAndActions(ctx, categories)

	return &domain.DigestSummary{
		TotalEmails: len(emails),
		UnreadCount: unread,
		Categories:  categories,
		Highlights:  highlights,
		ActionItems: actionItems,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// buildRollups groups classifications by category. Rollups are ordered by
// count descending, ties broken by canonical category order. Top emails are
// the three highest-priority messages, ties broken by merged-list order.
func buildRollups(byID map[string]*domain.ParsedEmail, categorized []domain.CategorizedEmail) []domain.CategorySummary {
	type entry struct {
		cat    domain.CategorizedEmail
		email  *domain.ParsedEmail
		merged int
	}

	grouped := make(map[domain.EmailCategory][]entry)
	for i, cat := range categorized {
		email, ok := byID[cat.MessageID]
		if !ok {
			continue
		}
		grouped[cat.Category] = append(grouped[cat.Category], entry{cat: cat, email: email, merged: i})
	}

	summaries := make([]domain.CategorySummary, 0, len(grouped))
	for category, entries := range grouped {
		highPriority := 0
		for _, e := range entries {
			if e.cat.Priority == domain.PriorityHigh {
				highPriority++
			}
		}

		// Stable sort keeps merged order for equal priorities.
		sorted := make([]entry, len(entries))
		copy(sorted, entries)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].cat.Priority.Rank() > sorted[j].cat.Priority.Rank()
		})

		top := make([]domain.TopEmail, 0, 3)
		for _, e := range sorted {
			if len(top) == 3 {
				break
			}
			from := e.email.FromName
			if from == "" {
				from = e.email.FromEmail
			}
			top = append(top, domain.TopEmail{
				Subject:  e.email.Subject,
				From:     from,
				Priority: e.cat.Priority,
			})
		}

		summary := fmt.Sprintf("%d emails", len(entries))
		if highPriority > 0 {
			summary = fmt.Sprintf("%d emails, %d high priority", len(entries), highPriority)
		}

		summaries = append(summaries, domain.CategorySummary{
			Category:  category,
			Count:     len(entries),
			Summary:   summary,
			TopEmails: top,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].Count != summaries[j].Count {
			return summaries[i].Count > summaries[j].Count
		}
		return domain.CategoryRank(summaries[i].Category) < domain.CategoryRank(summaries[j].Category)
	})

	return summaries
}

// =============================================================================
// AI highlights / action items
// =============================================================================

type highlightsResponse struct {
	Highlights  []string `json:"highlights"`
	ActionItems []string `json:"actionItems"`
}

func (s *Summarizer) highlightsAndActions(ctx context.Context, categories []domain.CategorySummary) ([]string, []string) {
	if len(categories) == 0 {
		return []string{}, []string{}
	}

	raw, err := s.llm.CompleteJSON(ctx, buildHighlightsPrompt(categories))
	if err != nil {
		s.log.Warn().Err(err).
			Str("event", "summary_fallback").
			Msg("digest summary call failed, using non-AI fallback")
		return fallbackHighlights(categories), []string{}
	}

	var resp highlightsResponse
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), &resp); err != nil || len(resp.Highlights) == 0 {
		s.log.Warn().Err(err).
			Str("event", "summary_fallback").
			Msg("digest summary response failed validation, using non-AI fallback")
		return fallbackHighlights(categories), []string{}
	}

	highlights := resp.Highlights
	if len(highlights) > maxHighlights {
		highlights = highlights[:maxHighlights]
	}
	actionItems := resp.ActionItems
	if actionItems == nil {
		actionItems = []string{}
	}
	return highlights, actionItems
}

func buildHighlightsPrompt(categories []domain.CategorySummary) string {
	payload, _ := json.Marshal(categories)

	var sb strings.Builder
	sb.WriteString(`You are an inbox digest assistant. Given the categorized email
rollups below, produce the key highlights and concrete action items for the user.

Rollups:
`)
	sb.Write(payload)
	sb.WriteString(`

Respond with this exact JSON format:
{
  "highlights": ["(at most 5 short highlight sentences)"],
  "actionItems": ["(action items, may be empty)"]
}`)
	return sb.String()
}

// fallbackHighlights is the deterministic degraded-mode digest summary:
// per-category counts plus an explicit limited-analysis marker.
func fallbackHighlights(categories []domain.CategorySummary) []string {
	highlights := make([]string, 0, maxHighlights)
	for _, c := range categories {
		if len(highlights) == maxHighlights-1 {
			break
		}
		highlights = append(highlights, fmt.Sprintf("%d %s emails", c.Count, c.Category))
	}
	highlights = append(highlights, "Digest generated with limited AI analysis.")
	return highlights
}

package classifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"digest_server/core/domain"
	"digest_server/pkg/apperr"

	"github.com/rs/zerolog"
)

type stubLLM struct {
	mu       sync.Mutex
	calls    int
	inFlight int
	maxSeen  int
	delay    time.Duration
	fail     bool
	respond  func(prompt string) (string, error)
}

func (s *stubLLM) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()

	if s.fail {
		return "", errors.New("upstream unavailable")
	}
	if s.respond != nil {
		return s.respond(prompt)
	}
	return echoResponse(prompt)
}

// echoResponse answers with a fixed classification for every messageId that
// appears in the prompt payload.
func echoResponse(prompt string) (string, error) {
	var summaries []promptEmail
	start := -1
	for i := 0; i < len(prompt); i++ {
		if prompt[i] == '[' {
			start = i
			break
		}
	}
	depth := 0
	end := -1
	for i := start; i < len(prompt); i++ {
		switch prompt[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if err := json.Unmarshal([]byte(prompt[start:end+1]), &summaries); err != nil {
		return "", err
	}

	items := make([]batchItem, len(summaries))
	for i, s := range summaries {
		items[i] = batchItem{
			MessageID:      s.MessageID,
			Category:       "work",
			Confidence:     0.9,
			Summary:        "summary of " + s.MessageID,
			Priority:       "medium",
			ActionRequired: false,
		}
	}
	raw, err := json.Marshal(batchResponse{Emails: items})
	return string(raw), err
}

func makeEmails(n int) []*domain.ParsedEmail {
	emails := make([]*domain.ParsedEmail, n)
	for i := range emails {
		emails[i] = &domain.ParsedEmail{
			MessageID: fmt.Sprintf("m%02d", i),
			Subject:   fmt.Sprintf("subject %d", i),
			Snippet:   fmt.Sprintf("snippet %d", i),
		}
	}
	return emails
}

func TestClassifyBatchSplitsIntoSubBatches(t *testing.T) {
	llm := &stubLLM{}
	c := New(llm, zerolog.Nop())

	results, err := c.ClassifyBatch(context.Background(), makeEmails(25))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 25 {
		t.Fatalf("got %d results, want 25", len(results))
	}
	if llm.calls != 3 {
		t.Errorf("upstream calls = %d, want 3 (batch width 10)", llm.calls)
	}
}

func TestClassifyBatchBoundsConcurrency(t *testing.T) {
	llm := &stubLLM{delay: 20 * time.Millisecond}
	c := New(llm, zerolog.Nop())

	// 100 messages -> 10 sub-batches, only 5 may run at once.
	if _, err := c.ClassifyBatch(context.Background(), makeEmails(100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if llm.maxSeen > maxConcurrent {
		t.Errorf("max concurrent upstream calls = %d, want <= %d", llm.maxSeen, maxConcurrent)
	}
}

func TestClassifyBatchFallbackOnUpstreamFailure(t *testing.T) {
	llm := &stubLLM{fail: true}
	c := New(llm, zerolog.Nop())

	emails := makeEmails(12)
	results, err := c.ClassifyBatch(context.Background(), emails)
	if err != nil {
		t.Fatalf("degraded mode must not surface an error, got: %v", err)
	}
	if len(results) != 12 {
		t.Fatalf("got %d results, want 12", len(results))
	}
	for i, r := range results {
		if r.Category != domain.CategoryOther {
			t.Errorf("result %d category = %s, want other", i, r.Category)
		}
		if r.Confidence != 0 {
			t.Errorf("result %d confidence = %v, want 0", i, r.Confidence)
		}
		if r.Summary != emails[i].Snippet {
			t.Errorf("result %d summary = %q, want snippet %q", i, r.Summary, emails[i].Snippet)
		}
		if r.Priority != domain.PriorityLow {
			t.Errorf("result %d priority = %s, want low", i, r.Priority)
		}
		if r.ActionRequired {
			t.Errorf("result %d actionRequired = true, want false", i)
		}
	}
}

func TestParseBatchResponseValidation(t *testing.T) {
	batch := []*domain.ParsedEmail{
		{MessageID: "m1", Snippet: "snip1"},
		{MessageID: "m2", Snippet: "snip2"},
	}

	t.Run("clamps confidence and coerces enums", func(t *testing.T) {
		raw := `{"emails":[
			{"messageId":"m1","category":"invoices","confidence":1.7,"summary":"s","priority":"urgent","actionRequired":true},
			{"messageId":"m2","category":"work","confidence":-0.2,"summary":"s2","priority":"high","actionRequired":false}
		]}`
		results, err := parseBatchResponse(raw, batch)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if results[0].Category != domain.CategoryOther {
			t.Errorf("unknown category coerced to %s, want other", results[0].Category)
		}
		if results[0].Confidence != 1 {
			t.Errorf("confidence = %v, want clamped to 1", results[0].Confidence)
		}
		if results[0].Priority != domain.PriorityLow {
			t.Errorf("unknown priority coerced to %s, want low", results[0].Priority)
		}
		if results[1].Confidence != 0 {
			t.Errorf("confidence = %v, want clamped to 0", results[1].Confidence)
		}
		if results[1].Priority != domain.PriorityHigh {
			t.Errorf("priority = %s, want high", results[1].Priority)
		}
	})

	t.Run("missing message gets fallback", func(t *testing.T) {
		raw := `{"emails":[{"messageId":"m1","category":"work","confidence":0.8,"summary":"s","priority":"low"}]}`
		results, err := parseBatchResponse(raw, batch)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if results[1].Category != domain.CategoryOther || results[1].Summary != "snip2" {
			t.Errorf("missing entry did not fall back: %+v", results[1])
		}
	})

	t.Run("strips code fences", func(t *testing.T) {
		raw := "```json\n{\"emails\":[{\"messageId\":\"m1\",\"category\":\"personal\",\"confidence\":0.5,\"summary\":\"s\",\"priority\":\"medium\"}]}\n```"
		results, err := parseBatchResponse(raw, batch[:1])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if results[0].Category != domain.CategoryPersonal {
			t.Errorf("category = %s, want personal", results[0].Category)
		}
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		if _, err := parseBatchResponse("not json at all", batch); err == nil {
			t.Error("expected error for malformed response")
		}
	})

	t.Run("rejects response matching no input ids", func(t *testing.T) {
		raw := `{"emails":[{"messageId":"zz","category":"work","confidence":0.8,"summary":"s","priority":"low"}]}`
		if _, err := parseBatchResponse(raw, batch); err == nil {
			t.Error("expected error when no ids match")
		}
	})
}

func TestClassifyBatchMatchesByMessageID(t *testing.T) {
	// Respond in reverse order; results must still line up by id.
	llm := &stubLLM{respond: func(prompt string) (string, error) {
		raw, err := echoResponse(prompt)
		if err != nil {
			return "", err
		}
		var resp batchResponse
		if err := json.Unmarshal([]byte(raw), &resp); err != nil {
			return "", err
		}
		for i, j := 0, len(resp.Emails)-1; i < j; i, j = i+1, j-1 {
			resp.Emails[i], resp.Emails[j] = resp.Emails[j], resp.Emails[i]
		}
		out, err := json.Marshal(resp)
		return string(out), err
	}}
	c := New(llm, zerolog.Nop())

	emails := makeEmails(5)
	results, err := c.ClassifyBatch(context.Background(), emails)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range results {
		if r.MessageID != emails[i].MessageID {
			t.Errorf("result %d id = %s, want %s", i, r.MessageID, emails[i].MessageID)
		}
		if want := "summary of " + emails[i].MessageID; r.Summary != want {
			t.Errorf("result %d summary = %q, want %q", i, r.Summary, want)
		}
	}
}

func TestClassifyBatchEmptyInput(t *testing.T) {
	llm := &stubLLM{}
	c := New(llm, zerolog.Nop())

	results, err := c.ClassifyBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results != nil {
		t.Errorf("got %v, want nil", results)
	}
	if llm.calls != 0 {
		t.Errorf("upstream calls = %d, want 0", llm.calls)
	}
}

func TestClassifyBatchContextAlreadyDone(t *testing.T) {
	llm := &stubLLM{}
	c := New(llm, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ClassifyBatch(ctx, makeEmails(3))
	if err == nil {
		t.Fatal("expected error for done context")
	}
	if !apperr.IsCode(err, apperr.CodeUpstreamError) {
		t.Errorf("error code = %v, want %s", err, apperr.CodeUpstreamError)
	}
	if llm.calls != 0 {
		t.Errorf("upstream calls = %d, want 0", llm.calls)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{name: "short passthrough", in: "hello", maxLen: 10, want: "hello"},
		{name: "exact length", in: "hello", maxLen: 5, want: "hello"},
		{name: "ascii cut", in: "hello world", maxLen: 5, want: "hello..."},
		// "héllo": the é is two bytes starting at index 1; cutting at 2
		// would split it.
		{name: "rune boundary", in: "héllo", maxLen: 2, want: "h..."},
		{name: "multibyte run", in: "あいう", maxLen: 4, want: "あ..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.maxLen)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) = %q is not valid UTF-8", tt.in, tt.maxLen, got)
			}
		})
	}
}

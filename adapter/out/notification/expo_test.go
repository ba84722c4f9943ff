package notification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"digest_server/core/domain"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type stubUsers struct {
	token string
}

func (s *stubUsers) GetCredentials(ctx context.Context, userID uuid.UUID) (*domain.MailCredentials, error) {
	return nil, nil
}

func (s *stubUsers) SaveAccessToken(ctx context.Context, userID uuid.UUID, accessToken string, expiry time.Time) error {
	return nil
}

func (s *stubUsers) GetPushToken(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.token, nil
}

func TestIsExpoPushToken(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"ExponentPushToken[abc123]", true},
		{"ExpoPushToken[abc123]", true},
		{"fcm-token-abc", false},
		{"", false},
		{"ExponentPushToken[", false},
	}
	for _, tt := range tests {
		if got := IsExpoPushToken(tt.token); got != tt.want {
			t.Errorf("IsExpoPushToken(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

func TestSendPostsMessage(t *testing.T) {
	var received pushMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode push body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewExpoAdapter(&stubUsers{token: "ExponentPushToken[abc]"}, zerolog.Nop())
	a.url = srv.URL

	err := a.Send(context.Background(), uuid.New(), "Your daily inbox digest", "3 emails summarized • 1 action items",
		map[string]string{"type": "digest", "frequency": "daily"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if received.To != "ExponentPushToken[abc]" || received.Sound != "default" {
		t.Errorf("message = %+v", received)
	}
	if received.Data["frequency"] != "daily" {
		t.Errorf("data = %v", received.Data)
	}
}

func TestSendSkipsInvalidToken(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	a := NewExpoAdapter(&stubUsers{token: "not-an-expo-token"}, zerolog.Nop())
	a.url = srv.URL

	if err := a.Send(context.Background(), uuid.New(), "t", "b", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls != 0 {
		t.Errorf("push endpoint called %d times for an invalid token, want 0", calls)
	}
}

func TestSendReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusBadRequest)
	}))
	defer srv.Close()

	a := NewExpoAdapter(&stubUsers{token: "ExponentPushToken[abc]"}, zerolog.Nop())
	a.url = srv.URL

	if err := a.Send(context.Background(), uuid.New(), "t", "b", nil); err == nil {
		t.Fatal("Send returned nil, want error on 400 response")
	}
}

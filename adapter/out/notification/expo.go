// Package notification provides the Expo push notification adapter.
package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"digest_server/core/port/out"
	"digest_server/pkg/httputil"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const expoPushURL = "https://exp.host/--/api/v2/push/send"

// ExpoAdapter implements out.PushNotifier against the Expo push service.
type ExpoAdapter struct {
	users  out.UserRepository
	client *http.Client
	url    string
	log    zerolog.Logger
}

// NewExpoAdapter creates the adapter.
func NewExpoAdapter(users out.UserRepository, log zerolog.Logger) *ExpoAdapter {
	return &ExpoAdapter{
		users:  users,
		client: httputil.NewOptimizedClient(nil),
		url:    expoPushURL,
		log:    log.With().Str("component", "expo_push").Logger(),
	}
}

type pushMessage struct {
	To    string            `json:"to"`
	Sound string            `json:"sound"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Send delivers one push notification. Users without a valid Expo token are
// silently skipped.
func (a *ExpoAdapter) Send(ctx context.Context, userID uuid.UUID, title, body string, data map[string]string) error {
	token, err := a.users.GetPushToken(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load push token: %w", err)
	}
	if !IsExpoPushToken(token) {
		a.log.Debug().Stringer("user_id", userID).Msg("no valid push token, skipping notification")
		return nil
	}

	payload, err := json.Marshal(pushMessage{
		To:    token,
		Sound: "default",
		Title: title,
		Body:  body,
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send push notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("expo push rejected: status %d: %s", resp.StatusCode, respBody)
	}

	a.log.Info().Stringer("user_id", userID).Str("title", title).Msg("push notification sent")
	return nil
}

// IsExpoPushToken reports whether the token looks like an Expo push token.
func IsExpoPushToken(token string) bool {
	return strings.HasPrefix(token, "ExponentPushToken[") && strings.HasSuffix(token, "]") ||
		strings.HasPrefix(token, "ExpoPushToken[") && strings.HasSuffix(token, "]")
}

var _ out.PushNotifier = (*ExpoAdapter)(nil)

package out

import (
	"context"

	"github.com/google/uuid"
)

// PushNotifier delivers a push notification to a user. Delivery is
// best-effort; failures never affect digest generation.
type PushNotifier interface {
	Send(ctx context.Context, userID uuid.UUID, title, body string, data map[string]string) error
}

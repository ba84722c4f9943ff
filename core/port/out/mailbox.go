// Package out defines the outbound ports consumed by core services.
package out

import (
	"context"

	"digest_server/core/domain"

	"github.com/google/uuid"
)

// MailboxProvider is an authenticated connection to one user's mailbox.
type MailboxProvider interface {
	// ListMessageIDs returns the ordered message ids matching the lookback
	// window for the given frequency, capped at maxResults.
	ListMessageIDs(ctx context.Context, maxResults int64, freq domain.DigestFrequency) ([]string, error)

	// FetchMessages fetches message metadata for the given ids in bounded
	// sub-batches. Per-id failures are logged and dropped; the returned
	// slice preserves the input id order for the messages that succeeded.
	FetchMessages(ctx context.Context, ids []string) ([]*domain.ParsedEmail, error)
}

// MailboxProviderFactory resolves stored credentials into a provider.
type MailboxProviderFactory interface {
	ProviderFor(ctx context.Context, userID uuid.UUID) (MailboxProvider, error)
}

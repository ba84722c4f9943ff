package out

import (
	"context"
	"time"

	"digest_server/core/domain"

	"github.com/google/uuid"
)

// GenerationLocker is the per-user single-flight guard for digest
// generation. Acquire returns false when another generation holds the lock.
type GenerationLocker interface {
	Acquire(ctx context.Context, userID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, userID uuid.UUID) error
}

// DigestCache is a read-through cache for the latest digest.
type DigestCache interface {
	GetLatest(ctx context.Context, userID uuid.UUID) (*domain.DigestSummary, bool)
	SetLatest(ctx context.Context, userID uuid.UUID, digest *domain.DigestSummary, ttl time.Duration)
	Invalidate(ctx context.Context, userID uuid.UUID)
}

// Package digest implements the digest generation pipeline: cache
// reconciliation, chunked fetch+classify orchestration, summarization, and
// the best-effort persistence commit.
package digest

import "digest_server/core/domain"

// Partition is the result of diffing the live mailbox id set against the
// stored classification records for a user.
//
// Cached and Stale exactly partition the stored records: every stored record
// lands in exactly one of the two. NewIDs preserves live-id order, contains
// no duplicates, and never overlaps the cached record ids.
type Partition struct {
	Cached []domain.StoredEmail
	Stale  []domain.StoredEmail
	NewIDs []string
}

// Reconcile diffs liveIDs against storedRecords.
//
// A stored record is cached when its message id still appears in the live
// window, stale otherwise. A live id is new when no stored record carries it.
// Pure function, total over empty inputs and duplicate live ids.
func Reconcile(liveIDs []string, storedRecords []domain.StoredEmail) Partition {
	liveSet := make(map[string]struct{}, len(liveIDs))
	for _, id := range liveIDs {
		liveSet[id] = struct{}{}
	}

	p := Partition{
		Cached: make([]domain.StoredEmail, 0, len(storedRecords)),
		Stale:  make([]domain.StoredEmail, 0),
		NewIDs: make([]string, 0, len(liveIDs)),
	}

	storedSet := make(map[string]struct{}, len(storedRecords))
	for _, rec := range storedRecords {
		storedSet[rec.MessageID] = struct{}{}
		if _, ok := liveSet[rec.MessageID]; ok {
			p.Cached = append(p.Cached, rec)
		} else {
			p.Stale = append(p.Stale, rec)
		}
	}

	seen := make(map[string]struct{}, len(liveIDs))
	for _, id := range liveIDs {
		if _, ok := storedSet[id]; ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		p.NewIDs = append(p.NewIDs, id)
	}

	return p
}

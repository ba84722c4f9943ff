package digest

import (
	"reflect"
	"testing"

	"digest_server/core/domain"
)

func stored(ids ...string) []domain.StoredEmail {
	recs := make([]domain.StoredEmail, len(ids))
	for i, id := range ids {
		recs[i] = domain.StoredEmail{MessageID: id, Category: domain.CategoryOther}
	}
	return recs
}

func recordIDs(recs []domain.StoredEmail) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.MessageID
	}
	return ids
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name       string
		liveIDs    []string
		stored     []domain.StoredEmail
		wantCached []string
		wantStale  []string
		wantNew    []string
	}{
		{
			name:       "empty stored yields all live ids as new",
			liveIDs:    []string{"a", "b", "c"},
			stored:     nil,
			wantCached: []string{},
			wantStale:  []string{},
			wantNew:    []string{"a", "b", "c"},
		},
		{
			name:       "empty live yields all stored as stale",
			liveIDs:    nil,
			stored:     stored("a", "b"),
			wantCached: []string{},
			wantStale:  []string{"a", "b"},
			wantNew:    []string{},
		},
		{
			name:       "both empty",
			liveIDs:    nil,
			stored:     nil,
			wantCached: []string{},
			wantStale:  []string{},
			wantNew:    []string{},
		},
		{
			name:       "full overlap yields pure cache hit",
			liveIDs:    []string{"a", "b", "c"},
			stored:     stored("a", "b", "c"),
			wantCached: []string{"a", "b", "c"},
			wantStale:  []string{},
			wantNew:    []string{},
		},
		{
			name:       "zero overlap",
			liveIDs:    []string{"x", "y"},
			stored:     stored("a", "b"),
			wantCached: []string{},
			wantStale:  []string{"a", "b"},
			wantNew:    []string{"x", "y"},
		},
		{
			name:       "partial overlap",
			liveIDs:    []string{"a", "b", "c"},
			stored:     stored("a", "d"),
			wantCached: []string{"a"},
			wantStale:  []string{"d"},
			wantNew:    []string{"b", "c"},
		},
		{
			name:       "duplicate live ids deduped in new set",
			liveIDs:    []string{"a", "b", "b", "a", "c"},
			stored:     stored("a"),
			wantCached: []string{"a"},
			wantStale:  []string{},
			wantNew:    []string{"b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Reconcile(tt.liveIDs, tt.stored)

			if got := recordIDs(p.Cached); !reflect.DeepEqual(got, tt.wantCached) {
				t.Errorf("cached = %v, want %v", got, tt.wantCached)
			}
			if got := recordIDs(p.Stale); !reflect.DeepEqual(got, tt.wantStale) {
				t.Errorf("stale = %v, want %v", got, tt.wantStale)
			}
			if !reflect.DeepEqual(p.NewIDs, tt.wantNew) {
				t.Errorf("newIDs = %v, want %v", p.NewIDs, tt.wantNew)
			}
		})
	}
}

// TestReconcilePartitionExactness asserts cached and stale exactly partition
// the stored records and that new ids never overlap cached ids.
func TestReconcilePartitionExactness(t *testing.T) {
	liveIDs := []string{"a", "b", "c", "e", "e"}
	records := stored("a", "b", "d", "f")

	p := Reconcile(liveIDs, records)

	if len(p.Cached)+len(p.Stale) != len(records) {
		t.Fatalf("partition lost or duplicated records: %d cached + %d stale != %d stored",
			len(p.Cached), len(p.Stale), len(records))
	}

	seen := make(map[string]int)
	for _, r := range p.Cached {
		seen[r.MessageID]++
	}
	for _, r := range p.Stale {
		seen[r.MessageID]++
	}
	for _, r := range records {
		if seen[r.MessageID] != 1 {
			t.Errorf("record %s appears %d times across cached+stale, want exactly 1",
				r.MessageID, seen[r.MessageID])
		}
	}

	cachedSet := make(map[string]struct{})
	for _, r := range p.Cached {
		cachedSet[r.MessageID] = struct{}{}
	}
	for _, id := range p.NewIDs {
		if _, ok := cachedSet[id]; ok {
			t.Errorf("new id %s overlaps a cached record", id)
		}
	}
}

// Concrete scenario from the digest sync design: live=[A,B,C],
// stored={A:work, D:social}.
func TestReconcileWorkSocialScenario(t *testing.T) {
	records := []domain.StoredEmail{
		{MessageID: "A", Category: domain.CategoryWork},
		{MessageID: "D", Category: domain.CategorySocial},
	}

	p := Reconcile([]string{"A", "B", "C"}, records)

	if got := recordIDs(p.Cached); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("cached = %v, want [A]", got)
	}
	if p.Cached[0].Category != domain.CategoryWork {
		t.Errorf("cached record category = %s, want work (no reclassification)", p.Cached[0].Category)
	}
	if got := recordIDs(p.Stale); !reflect.DeepEqual(got, []string{"D"}) {
		t.Errorf("stale = %v, want [D]", got)
	}
	if !reflect.DeepEqual(p.NewIDs, []string{"B", "C"}) {
		t.Errorf("newIDs = %v, want [B C]", p.NewIDs)
	}
}

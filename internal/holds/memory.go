package holds

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Each unit of work runs against a copy
// of the table that replaces the committed state only when fn succeeds.
// Units of work are serialised.
type MemoryStore struct {
	mu    sync.Mutex
	holds map[string]Hold
	now   func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{holds: make(map[string]Hold), now: time.Now}
}

// WithClock overrides the clock used to stamp CreatedAt.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	if now != nil {
		s.now = now
	}
	return s
}

// WithTx stages writes on a snapshot and swaps it in on success.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, ledger Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]Hold, len(s.holds))
	for k, v := range s.holds {
		staged[k] = v
	}
	if err := fn(ctx, &memLedger{holds: staged, now: s.now}); err != nil {
		return err
	}
	s.holds = staged
	return nil
}

// Snapshot returns every committed hold ordered by start then id.
func (s *MemoryStore) Snapshot() []Hold {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Hold, 0, len(s.holds))
	for _, h := range s.holds {
		out = append(out, h)
	}
	sortHolds(out)
	return out
}

type memLedger struct {
	holds map[string]Hold
	now   func() time.Time
}

func (l *memLedger) Create(_ context.Context, hold Hold) error {
	if err := hold.Validate(); err != nil {
		return err
	}
	if _, exists := l.holds[hold.HoldID]; exists {
		return ErrDuplicateHold
	}
	if hold.Status == "" {
		hold.Status = StatusTentative
	}
	if hold.CreatedAt.IsZero() {
		hold.CreatedAt = l.now().UTC()
	}
	l.holds[hold.HoldID] = hold
	return nil
}

func (l *memLedger) Get(_ context.Context, holdID string) (*Hold, error) {
	hold, ok := l.holds[holdID]
	if !ok {
		return nil, ErrHoldNotFound
	}
	return &hold, nil
}

func (l *memLedger) ListByGroup(_ context.Context, groupID string) ([]Hold, error) {
	if groupID == "" {
		return nil, nil
	}
	var out []Hold
	for _, h := range l.holds {
		if h.GroupID == groupID {
			out = append(out, h)
		}
	}
	sortHolds(out)
	return out, nil
}

func (l *memLedger) SetStatus(_ context.Context, holdID string, status Status) error {
	hold, ok := l.holds[holdID]
	if !ok {
		return nil
	}
	hold.Status = status
	l.holds[holdID] = hold
	return nil
}

func (l *memLedger) Delete(_ context.Context, holdID string) error {
	delete(l.holds, holdID)
	return nil
}

func (l *memLedger) DeleteIfTentative(_ context.Context, holdID string) (bool, error) {
	hold, ok := l.holds[holdID]
	if !ok || hold.Status != StatusTentative {
		return false, nil
	}
	delete(l.holds, holdID)
	return true, nil
}

func (l *memLedger) DeleteGroup(_ context.Context, groupID string) error {
	if groupID == "" {
		return nil
	}
	for id, h := range l.holds {
		if h.GroupID == groupID {
			delete(l.holds, id)
		}
	}
	return nil
}

func (l *memLedger) ConfirmIfGroupOpen(_ context.Context, holdID string) (bool, error) {
	hold, ok := l.holds[holdID]
	if !ok {
		return false, ErrHoldNotFound
	}
	if hold.GroupID != "" {
		for id, h := range l.holds {
			if id != holdID && h.GroupID == hold.GroupID && h.Status == StatusConfirmed {
				return false, nil
			}
		}
	}
	hold.Status = StatusConfirmed
	l.holds[holdID] = hold
	return true, nil
}

func (l *memLedger) ListExpired(_ context.Context, before time.Time, limit int) ([]Hold, error) {
	var out []Hold
	for _, h := range l.holds {
		if h.Status == StatusTentative && h.CreatedAt.Before(before) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortHolds(hs []Hold) {
	sort.Slice(hs, func(i, j int) bool {
		if hs[i].Start.Equal(hs[j].Start) {
			return hs[i].HoldID < hs[j].HoldID
		}
		return hs[i].Start.Before(hs[j].Start)
	})
}

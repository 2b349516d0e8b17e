package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/internal/model"
)

// Auditor is what the domain services depend on.
type Auditor interface {
	Log(ctx context.Context, e Entry)
}

var _ Auditor = (*Service)(nil)

// Action builds an entry for a domain action taken by actor on an entity.
func Action(actor uuid.UUID, action, entityType string, entityID uuid.UUID, metadata model.JSONMap) Entry {
	return Entry{
		UserID:     &actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID.String(),
		Metadata:   metadata,
	}
}

// Nop discards entries.
type Nop struct{}

func (Nop) Log(context.Context, Entry) {}

// Recorder keeps entries in memory. Used in tests.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) Log(_ context.Context, e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Actions returns the recorded action names in order.
func (r *Recorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

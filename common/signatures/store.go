package signatures

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/netsentry/netsentry/common/models"
)

// Snapshot is an immutable, ordered view of the rule set.
type Snapshot struct {
	Rules   []models.Signature
	Version int64
}

// Active returns the rules currently enabled, in order.
func (s *Snapshot) Active() []models.Signature {
	out := make([]models.Signature, 0, len(s.Rules))
	for _, r := range s.Rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out
}

// Names returns the names of the active rules.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Rules))
	for _, r := range s.Active() {
		names = append(names, r.Name)
	}
	return names
}

// Store publishes rule snapshots. Readers take one snapshot for a whole pass;
// writers build a new snapshot and swap it in.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates a store seeded with rules.
func NewStore(rules []models.Signature) *Store {
	s := &Store{}
	s.Replace(rules)
	return s
}

// Load returns the current snapshot.
func (s *Store) Load() *Snapshot {
	return s.current.Load()
}

// Replace deep-copies rules into a fresh snapshot and publishes it.
func (s *Store) Replace(rules []models.Signature) *Snapshot {
	copied := make([]models.Signature, len(rules))
	for i, r := range rules {
		r.Patterns = slices.Clone(r.Patterns)
		copied[i] = r
	}
	snap := &Snapshot{Rules: copied, Version: time.Now().UnixNano()}
	s.current.Store(snap)
	return snap
}

// Scan matches e against the current snapshot.
func (s *Store) Scan(e *models.Event) []Hit {
	return Match(s.Load().Rules, e)
}

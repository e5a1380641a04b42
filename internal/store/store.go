// Package store owns the authoritative in-memory tally and its durable
// state. Every mutation goes through Apply, which treats the audit append,
// the snapshot write, and the in-memory increment as one unit: if
// persistence fails the memory is left untouched and the vote is reported
// as not counted.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/holidayvote/bridge/internal/model"
)

var (
	// ErrInvalidCandidate reports a vote for a candidate outside 1..N.
	// The decoder already rejects these; the store re-validates anyway.
	ErrInvalidCandidate = errors.New("store: candidate out of range")

	// ErrAlreadyInitialized reports a second Initialize or one arriving
	// after votes have been applied.
	ErrAlreadyInitialized = errors.New("store: already initialized")
)

// PersistenceError wraps a failed snapshot or audit write. The in-memory
// tally was not changed; the vote is not counted.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "store: persistence failed: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type Store struct {
	candidates int
	persister  Persister
	logger     *slog.Logger

	mu          sync.Mutex
	tally       model.Tally
	initialized bool
	applied     bool
}

func New(candidates int, p Persister, logger *slog.Logger) *Store {
	return &Store{
		candidates: candidates,
		persister:  p,
		logger:     logger,
		tally:      model.NewTally(candidates),
	}
}

// Initialize seeds the in-memory tally. It may be called at most once, and
// only before any vote has been applied. Counts for unknown candidates are
// dropped; the result is always dense over 1..N.
func (s *Store) Initialize(seed model.Tally) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized || s.applied {
		return ErrAlreadyInitialized
	}
	t := model.NewTally(s.candidates)
	for id := range t {
		if count := seed[id]; count > 0 {
			t[id] = count
		}
	}
	s.tally = t
	s.initialized = true
	return nil
}

// Recover loads the local snapshot, merges it with the remote tally by
// element-wise maximum, and initializes the store with the result. The
// audit log count is cross-checked against the seed total; drift is logged
// but does not block startup.
func (s *Store) Recover(ctx context.Context, remote model.Tally) (model.Tally, error) {
	local, ok, err := s.persister.LoadSnapshot(ctx)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	if !ok {
		local = model.NewTally(s.candidates)
	}
	seed := model.Merge(local, remote)
	if err := s.Initialize(seed); err != nil {
		return nil, err
	}
	if n, err := s.persister.AuditCount(ctx); err == nil && n != seed.Total() {
		s.logger.Warn("audit log and seed tally disagree",
			"audit_records", n, "seed_total", seed.Total())
	}
	return s.Current(), nil
}

// Apply counts one vote: audit record first, then snapshot, then the
// in-memory increment. Returns the candidate's new total.
func (s *Store) Apply(ctx context.Context, event model.VoteEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := event.Candidate
	if id < 1 || int(id) > s.candidates {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCandidate, id)
	}
	next := s.tally[id] + 1
	rec := model.AuditRecord{Timestamp: event.ReceivedAt, Candidate: id, Count: next}
	if err := s.persister.AppendAudit(ctx, rec); err != nil {
		return 0, &PersistenceError{Err: err}
	}
	updated := s.tally.Clone()
	updated[id] = next
	if err := s.persister.SaveSnapshot(ctx, updated); err != nil {
		return 0, &PersistenceError{Err: err}
	}
	s.tally = updated
	s.applied = true
	return next, nil
}

// Current returns a copy of the tally. It never touches the persister.
func (s *Store) Current() model.Tally {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tally.Clone()
}

func (s *Store) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

package commit

import (
	"sync"

	icyerrors "github.com/icydb/icydb/errors"
)

// Store is the single-slot commit marker store. Exactly one marker may be
// present at a time; clearing it is infallible and unconditional, since a
// failure to clear would leave the engine permanently unable to start a new
// commit (spec.md §4.5, §9).
type Store struct {
	mu     sync.Mutex
	marker *Marker
}

// NewStore constructs an empty commit store.
func NewStore() *Store {
	return &Store{}
}

// Load returns the currently persisted marker, if any.
func (s *Store) Load() (Marker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.marker == nil {
		return Marker{}, false
	}
	return *s.marker, true
}

// set persists marker, failing with InvariantViolation while another marker
// is still pending. Only begin_commit may call this; see protocol.go.
func (s *Store) set(marker Marker) error {
	if _, err := marker.Encode(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.marker != nil {
		return icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginStore,
			"cannot begin a commit while marker %q is still pending", s.marker.ID)
	}
	cp := marker
	s.marker = &cp
	return nil
}

// ClearInfallible removes any persisted marker unconditionally. Never
// returns an error: per spec.md §4.5 this step must never be the reason a
// commit fails to complete.
func (s *Store) ClearInfallible() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marker = nil
}

// IsEmpty reports whether no marker is currently pending.
func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marker == nil
}

// MarkerPresent reports whether a marker is currently pending (an inverse
// alias of IsEmpty kept for call-site readability at recovery time).
func (s *Store) MarkerPresent() bool {
	return !s.IsEmpty()
}

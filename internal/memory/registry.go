// Package memory implements the consumed "memory slot" interface of spec.md
// §6: reservation of numeric slot-id ranges to owners, registration of
// individual slots, and a snapshot of the whole table. Each registered slot
// owns a real anonymous mmap arena (edsrzf/mmap-go), so "stable memory
// divided into fixed numeric slots" is backed by actual mapped pages rather
// than a bare Go map. The stores do not write into these arenas: a store's
// memory_bytes() is its ordered map's key+value byte total, not the size of
// a slot's mapping.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/edsrzf/mmap-go"

	icyerrors "github.com/icydb/icydb/errors"
)

// SlotID is a u8 numeric memory slot identifier, per spec.md §6.
type SlotID = uint8

// RangeEntry records a reserved, non-overlapping range of slot ids and its owner.
type RangeEntry struct {
	Owner string
	Start SlotID
	End   SlotID // inclusive
}

func (r RangeEntry) Contains(id SlotID) bool {
	return id >= r.Start && id <= r.End
}

// Entry records one registered memory slot.
type Entry struct {
	ID    SlotID
	Label string
	Owner string
}

// Registry is the process-global memory slot directory. Reservation and
// registration are one-shot: reconfiguring a slot under a different label is
// a fatal misconfiguration, never a silent rebind (spec.md §9).
type Registry struct {
	mu      sync.RWMutex
	ranges  []RangeEntry
	entries map[SlotID]Entry
	arenas  map[SlotID]*Arena
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[SlotID]Entry),
		arenas:  make(map[SlotID]*Arena),
	}
}

// ReserveRange reserves [start, end] to owner. Overlapping reservations are rejected.
func (r *Registry) ReserveRange(owner string, start, end SlotID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidate := RangeEntry{Owner: owner, Start: start, End: end}
	for _, existing := range r.ranges {
		if rangesOverlap(existing, candidate) {
			return icyerrors.StoreUnsupported(fmt.Sprintf(
				"memory range [%d,%d] for owner %q overlaps existing range [%d,%d] owned by %q",
				start, end, owner, existing.Start, existing.End, existing.Owner))
		}
	}
	r.ranges = append(r.ranges, candidate)
	return nil
}

func rangesOverlap(a, b RangeEntry) bool {
	return a.Start <= b.End && b.Start <= a.End
}

// Register assigns a label to a single slot id, failing if the slot is
// already registered under a different label (one-shot config, spec.md §9).
func (r *Registry) Register(id SlotID, owner, label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[id]; ok {
		if existing.Label == label && existing.Owner == owner {
			return nil
		}
		return icyerrors.StoreUnsupported(fmt.Sprintf(
			"memory slot %d is already registered as %q (owner %q); cannot rebind to %q (owner %q)",
			id, existing.Label, existing.Owner, label, owner))
	}

	r.entries[id] = Entry{ID: id, Label: label, Owner: owner}
	r.arenas[id] = newArena()
	return nil
}

// Get looks up a registered slot by id.
func (r *Registry) Get(id SlotID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// SnapshotEntries returns all registered entries, sorted by id for determinism.
func (r *Registry) SnapshotEntries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SnapshotRanges returns all reserved ranges.
func (r *Registry) SnapshotRanges() []RangeEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RangeEntry, len(r.ranges))
	copy(out, r.ranges)
	return out
}

// Arena returns the backing arena for a registered slot.
func (r *Registry) Arena(id SlotID) (*Arena, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.arenas[id]
	if !ok {
		return nil, icyerrors.StoreUnsupported(fmt.Sprintf("memory slot %d is not registered", id))
	}
	return a, nil
}

// OwnerForID resolves the canonical owner label for a slot id by range
// membership. The first matching range wins, mirroring non-overlapping
// registry semantics.
func (r *Registry) OwnerForID(id SlotID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rng := range r.ranges {
		if rng.Contains(id) {
			return rng.Owner, nil
		}
	}
	return "", icyerrors.StoreUnsupported(fmt.Sprintf("memory slot %d is outside reserved ranges", id))
}

// Arena is a growable byte arena backed by an anonymous mmap region,
// standing in for one numeric stable-memory slot. Growth remaps a larger
// region and copies the live bytes across, the same doubling strategy a
// page allocator uses when a slot outgrows its current extent.
type Arena struct {
	mu     sync.Mutex
	region mmap.MMap
	used   int
}

const initialArenaBytes = 64 * 1024

func newArena() *Arena {
	return &Arena{}
}

// Bytes reports the number of live bytes currently committed in the arena.
func (a *Arena) Bytes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Reserve ensures the arena has at least n bytes of capacity, growing (via a
// fresh anonymous mmap) if needed, and tracks n as the new "live" size.
func (a *Arena) Reserve(n int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n <= len(a.region) {
		a.used = n
		return nil
	}

	newCap := initialArenaBytes
	if len(a.region) > 0 {
		newCap = len(a.region) * 2
	}
	for newCap < n {
		newCap *= 2
	}

	region, err := mmap.MapRegion(nil, newCap, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return icyerrors.StoreInternal(fmt.Sprintf("memory arena mmap growth failed: %v", err))
	}
	copy(region, a.region)
	if a.region != nil {
		_ = a.region.Unmap()
	}
	a.region = region
	a.used = n
	return nil
}

// Close releases the arena's backing mapping.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.region == nil {
		return nil
	}
	err := a.region.Unmap()
	a.region = nil
	a.used = 0
	return err
}

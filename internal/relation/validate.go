// Package relation implements strong-relation referential-integrity checks:
// before a row can be deleted, every reverse-indexed reference to it must be
// proven absent (spec.md §4, "strong relation" semantics).
package relation

import (
	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/row"
	"github.com/icydb/icydb/internal/store"

	icyerrors "github.com/icydb/icydb/errors"
)

// Reverse describes one strong relation pointing at a target entity: a
// source entity whose named field holds a reference, backed by a reverse
// index bucketed on the referenced key.
type Reverse struct {
	SourceEntity string
	SourceField  string
	ReverseIndex *store.IndexStore
	SourceStore  *store.DataStore
}

// Violation describes one surviving reference found blocking a delete.
type Violation struct {
	SourceEntity string
	SourceField  string
	SourceKey    key.Value
	TargetEntity string
	TargetKey    key.Value
}

// ValidateDeleteStrongRelations checks every declared reverse relation for
// surviving references to (targetEntity, targetKey), in two phases per
// relation:
//
//  1. A pure reverse-index lookup for candidate source primary keys. This
//     phase alone never mutates anything and is cheap to repeat, so callers
//     may count it as a distinct diagnostic event without that event
//     implying a real violation.
//  2. A defensive re-decode of each candidate's source row. A candidate
//     whose source row is missing entirely is Corruption (the reverse index
//     pointed at a row that should exist but doesn't); a candidate whose
//     source row no longer actually references the target (a stale reverse
//     entry) is skipped, not reported, since the reverse index is a
//     secondary structure and the row itself is authoritative.
//
// Returns every confirmed violation (empty slice if the delete is safe).
func ValidateDeleteStrongRelations(targetEntity string, targetKey key.Value, relations []Reverse) ([]Violation, error) {
	var violations []Violation

	for _, rel := range relations {
		components := []key.Value{targetKey}
		entry, found, err := rel.ReverseIndex.Get(components)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		for _, candidatePK := range entry.Keys {
			sourceRow, ok, err := rel.SourceStore.Get(candidatePK)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, icyerrors.Newf(icyerrors.ClassCorruption, icyerrors.OriginIndex,
					"reverse index for %s.%s references missing source row (entity %s, key %v)",
					rel.SourceEntity, rel.SourceField, rel.SourceEntity, candidatePK)
			}

			if !referencesTarget(sourceRow, rel.SourceField, targetKey) {
				// Stale reverse entry: the row no longer points at this
				// target. The reverse index is a derived structure, not
				// authoritative, so this is silently skipped rather than
				// treated as corruption.
				continue
			}

			violations = append(violations, Violation{
				SourceEntity: rel.SourceEntity,
				SourceField:  rel.SourceField,
				SourceKey:    candidatePK,
				TargetEntity: targetEntity,
				TargetKey:    targetKey,
			})
		}
	}

	return violations, nil
}

func referencesTarget(r row.Row, field string, targetKey key.Value) bool {
	v, ok := r.Fields[field]
	if !ok {
		return false
	}
	got, err := key.EncodeScalarKey(v)
	if err != nil {
		return false
	}
	want, err := key.EncodeScalarKey(targetKey)
	if err != nil {
		return false
	}
	return string(got) == string(want)
}

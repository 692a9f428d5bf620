// Package cursor implements the continuation-token wire format, its
// validation gate, and plan fingerprinting (spec.md §4.12). Tokens are the
// sole mechanism by which a paginated query resumes: a boundary (the last
// emitted row's ordering slots) plus, for index-range access, a raw anchor
// the index store uses to strictly advance past the previously-seen key.
package cursor

import (
	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/plan"
	"github.com/icydb/icydb/serialize"

	icyerrors "github.com/icydb/icydb/errors"
)

// MaxTokenBytes is the oversize-payload cap applied to every continuation
// token kind (spec.md §4.12: "> 8 KiB for grouped tokens, equivalent cap
// elsewhere" — this engine applies the same cap uniformly).
const MaxTokenBytes = 8 * 1024

// CursorBoundarySlot is one ordering-column value of a resumed row, or
// Missing if that column held no queryable value for the boundary row.
type CursorBoundarySlot struct {
	Present bool
	Value   key.Value
}

// CursorBoundary's arity equals the canonical order spec's arity (order
// terms plus the final PK tie-break).
type CursorBoundary struct {
	Slots []CursorBoundarySlot
}

// ContinuationToken is the v1 wire structure resuming a non-grouped
// LoadExecutor page.
type ContinuationToken struct {
	Version          uint8
	Signature        [32]byte
	Boundary         CursorBoundary
	Direction        plan.SortDirection
	InitialOffset    uint32
	IndexRangeAnchor *key.RawIndexKey // nil unless the access path was IndexRange
}

// GroupedContinuationToken resumes a grouped-aggregate plan. Direction is
// always Asc: descending grouped cursors are rejected by the prepare gate
// (spec.md §4.12, an intentional open-question resolution — see DESIGN.md).
type GroupedContinuationToken struct {
	Version       uint8
	Signature     [32]byte
	LastGroupKey  []key.Value
	Direction     plan.SortDirection
	InitialOffset uint32
}

// wire mirrors ContinuationToken with CBOR-native field types: Values are
// pre-encoded via key.EncodeOrderedComponent, exactly as internal/row does
// for the same reason (key.Value isn't itself CBOR-native).
type wireSlot struct {
	Present bool   `codec:"present"`
	Value   []byte `codec:"value,omitempty"`
}

type wireToken struct {
	Version       uint8      `codec:"version"`
	Signature     []byte     `codec:"signature"`
	Boundary      []wireSlot `codec:"boundary"`
	Direction     uint8      `codec:"direction"`
	InitialOffset uint32     `codec:"initial_offset"`
	HasAnchor     bool       `codec:"has_anchor"`
	Anchor        []byte     `codec:"anchor,omitempty"`
}

// Encode renders t to its versioned CBOR wire form.
func (t ContinuationToken) Encode() ([]byte, error) {
	w := wireToken{
		Version:       t.Version,
		Signature:     t.Signature[:],
		Direction:     uint8(t.Direction),
		InitialOffset: t.InitialOffset,
	}
	for _, slot := range t.Boundary.Slots {
		ws := wireSlot{Present: slot.Present}
		if slot.Present {
			b, err := key.EncodeOrderedComponent(slot.Value)
			if err != nil {
				return nil, err
			}
			ws.Value = b
		}
		w.Boundary = append(w.Boundary, ws)
	}
	if t.IndexRangeAnchor != nil {
		b, err := t.IndexRangeAnchor.Encode()
		if err != nil {
			return nil, err
		}
		w.HasAnchor = true
		w.Anchor = b
	}
	out, err := serialize.Serialize(w)
	if err != nil {
		return nil, err
	}
	if len(out) > MaxTokenBytes {
		return nil, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
			"continuation token of %d bytes exceeds the %d byte cap", len(out), MaxTokenBytes)
	}
	return out, nil
}

// DecodeContinuationToken reverses Encode, rejecting oversize payloads
// before any decode work.
func DecodeContinuationToken(data []byte) (ContinuationToken, error) {
	var w wireToken
	if err := serialize.DeserializeProtocolPayload(data, MaxTokenBytes, &w); err != nil {
		return ContinuationToken{}, err
	}
	if len(w.Signature) != 32 {
		return ContinuationToken{}, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
			"continuation token signature must be 32 bytes, got %d", len(w.Signature))
	}
	t := ContinuationToken{
		Version:       w.Version,
		Direction:     plan.SortDirection(w.Direction),
		InitialOffset: w.InitialOffset,
	}
	copy(t.Signature[:], w.Signature)
	for i, ws := range w.Boundary {
		slot := CursorBoundarySlot{Present: ws.Present}
		if ws.Present {
			v, n, err := key.DecodeOrderedComponent(ws.Value)
			if err != nil {
				return ContinuationToken{}, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
					"continuation token boundary slot %d: %v", i, err)
			}
			if n != len(ws.Value) {
				return ContinuationToken{}, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
					"continuation token boundary slot %d has trailing bytes", i)
			}
			slot.Value = v
		}
		t.Boundary.Slots = append(t.Boundary.Slots, slot)
	}
	if w.HasAnchor {
		anchor, err := key.DecodeRawIndexKey(w.Anchor)
		if err != nil {
			return ContinuationToken{}, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
				"continuation token anchor: %v", err)
		}
		t.IndexRangeAnchor = &anchor
	}
	return t, nil
}

type wireGroupedToken struct {
	Version       uint8    `codec:"version"`
	Signature     []byte   `codec:"signature"`
	LastGroupKey  [][]byte `codec:"last_group_key"`
	Direction     uint8    `codec:"direction"`
	InitialOffset uint32   `codec:"initial_offset"`
}

// Encode renders t to its versioned CBOR wire form.
func (t GroupedContinuationToken) Encode() ([]byte, error) {
	w := wireGroupedToken{
		Version:       t.Version,
		Signature:     t.Signature[:],
		Direction:     uint8(t.Direction),
		InitialOffset: t.InitialOffset,
	}
	for i, v := range t.LastGroupKey {
		b, err := key.EncodeOrderedComponent(v)
		if err != nil {
			return nil, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
				"grouped continuation last_group_key[%d]: %v", i, err)
		}
		w.LastGroupKey = append(w.LastGroupKey, b)
	}
	out, err := serialize.Serialize(w)
	if err != nil {
		return nil, err
	}
	if len(out) > MaxTokenBytes {
		return nil, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
			"grouped continuation token of %d bytes exceeds the %d byte cap", len(out), MaxTokenBytes)
	}
	return out, nil
}

// DecodeGroupedContinuationToken reverses Encode.
func DecodeGroupedContinuationToken(data []byte) (GroupedContinuationToken, error) {
	var w wireGroupedToken
	if err := serialize.DeserializeProtocolPayload(data, MaxTokenBytes, &w); err != nil {
		return GroupedContinuationToken{}, err
	}
	if len(w.Signature) != 32 {
		return GroupedContinuationToken{}, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
			"grouped continuation token signature must be 32 bytes, got %d", len(w.Signature))
	}
	t := GroupedContinuationToken{
		Version:       w.Version,
		Direction:     plan.SortDirection(w.Direction),
		InitialOffset: w.InitialOffset,
	}
	copy(t.Signature[:], w.Signature)
	for i, b := range w.LastGroupKey {
		v, n, err := key.DecodeOrderedComponent(b)
		if err != nil {
			return GroupedContinuationToken{}, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
				"grouped continuation last_group_key[%d]: %v", i, err)
		}
		if n != len(b) {
			return GroupedContinuationToken{}, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginQuery,
				"grouped continuation last_group_key[%d] has trailing bytes", i)
		}
		t.LastGroupKey = append(t.LastGroupKey, v)
	}
	return t, nil
}

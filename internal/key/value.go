// Package key implements IcyDB's key and row codecs: the scalar Key sum
// type, its fixed-width byte encoding, the ordered composite-component
// encoding used inside index keys, RawDataKey and RawIndexKey framing
// (spec.md §3-§4.1). Real value-type definitions (ULID, Decimal, Principal,
// ...) are external collaborators per spec.md §1; this package carries the
// minimal internal representations needed to encode and order them.
package key

import (
	"math/big"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// Kind tags a Value's variant. The keyable subset (see Keyable) is the set
// usable as a primary Key or an index component; the remainder round out the
// predicate/field value domain (spec.md §6 FieldKind list).
type Kind uint8

const (
	KindUnit Kind = iota
	KindBool
	KindInt
	KindUint
	KindInt128
	KindUint128
	KindFloat32
	KindFloat64
	KindText
	KindBlob
	KindUlid
	KindPrincipal
	KindAccount
	KindSubaccount
	KindTimestamp
	KindDate
	KindDuration
	KindDecimal
	KindBigInt
	KindList
	KindSet
	KindMap
	KindEnum
	KindRelation
	KindStructured
)

func (k Kind) String() string {
	names := [...]string{
		"Unit", "Bool", "Int", "Uint", "Int128", "Uint128", "Float32", "Float64",
		"Text", "Blob", "Ulid", "Principal", "Account", "Subaccount", "Timestamp",
		"Date", "Duration", "Decimal", "BigInt", "List", "Set", "Map", "Enum",
		"Relation", "Structured",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Keyable reports whether values of this kind may serve as a primary Key or
// an index component (spec.md §3: "non-queryable kinds ... are rejected").
// Date and Duration are reported keyable, but neither EncodeOrderedComponent
// nor EncodeScalarKey encodes them; both reject values of those kinds.
func (k Kind) Keyable() bool {
	switch k {
	case KindAccount, KindInt, KindPrincipal, KindSubaccount, KindTimestamp,
		KindUint, KindUlid, KindUnit, KindDecimal, KindBigInt, KindText, KindBool,
		KindInt128, KindUint128, KindDate, KindDuration:
		return true
	default:
		return false
	}
}

// Value is IcyDB's tagged scalar value. Exactly one payload field is
// meaningful for a given Kind.
type Value struct {
	Kind Kind

	Bool    bool
	Int     int64        // Int, Timestamp (unix nanos), Date (days), Duration (ns)
	Uint    uint64        // Uint, Ulid (low component kept in Bytes), Enum ordinal
	Int128  *big.Int     // Int128 / wider signed composite keys
	Uint128 *uint256.Int // Uint128
	Float32 float32
	Float64 float64
	Text    string
	Bytes   []byte // Blob, Ulid (16 bytes), Principal, Subaccount, Account
	Decimal decimal.Decimal
	BigInt  *big.Int // arbitrary-precision signed key component

	List    []Value    // List/Set element values, canonical order for Set
	Entries []MapEntry // Map key/value pairs
}

// MapEntry is one key/value pair of a Map-kind Value.
type MapEntry struct {
	Key   Value
	Value Value
}

// Unit returns the canonical unit value.
func Unit() Value { return Value{Kind: KindUnit} }

func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

func Int(v int64) Value { return Value{Kind: KindInt, Int: v} }

func Uint(v uint64) Value { return Value{Kind: KindUint, Uint: v} }

func Text(s string) Value { return Value{Kind: KindText, Text: s} }

func Blob(b []byte) Value { return Value{Kind: KindBlob, Bytes: b} }

func Timestamp(unixNanos int64) Value { return Value{Kind: KindTimestamp, Int: unixNanos} }

// Ulid constructs a Ulid-kind value from a parsed ULID.
func Ulid(id ulid.ULID) Value {
	b := make([]byte, 16)
	copy(b, id[:])
	return Value{Kind: KindUlid, Bytes: b}
}

// NewUlid generates a fresh, monotonically-sortable ULID value using the
// entropy source conventionally paired with oklog/ulid.
func NewUlid(entropy *ulid.MonotonicEntropy, ms uint64) (Value, error) {
	id, err := ulid.New(ms, entropy)
	if err != nil {
		return Value{}, err
	}
	return Ulid(id), nil
}

// Principal stub: IcyDB's real Principal type is an external collaborator
// (spec.md §1); google/uuid backs this stand-in representation, which only
// needs to support total byte ordering and round-trip encoding.
func Principal(id uuid.UUID) Value {
	b := make([]byte, 16)
	copy(b, id[:])
	return Value{Kind: KindPrincipal, Bytes: b}
}

func DecimalValue(d decimal.Decimal) Value { return Value{Kind: KindDecimal, Decimal: d} }

func BigInt(v *big.Int) Value { return Value{Kind: KindBigInt, BigInt: v} }

func Int128(v *big.Int) Value { return Value{Kind: KindInt128, Int128: v} }

func Uint128(v *uint256.Int) Value { return Value{Kind: KindUint128, Uint128: v} }

// List constructs a List-kind value.
func List(elements []Value) Value { return Value{Kind: KindList, List: elements} }

// Set constructs a Set-kind value; elements are expected caller-side to
// already be in canonical (deduplicated, ordered) form.
func Set(elements []Value) Value { return Value{Kind: KindSet, List: elements} }

// Map constructs a Map-kind value from key/value entries.
func Map(entries []MapEntry) Value { return Value{Kind: KindMap, Entries: entries} }

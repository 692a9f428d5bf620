// Package commit implements IcyDB's single-marker commit protocol
// (spec.md §4.5): a CommitMarker is persisted before any store mutation
// (begin_commit), the mutations themselves are applied as an infallible
// straight-line pass, and the marker is cleared unconditionally afterward
// (finish_commit). There is no separate write-ahead log: the marker itself
// is the sole durability witness recovery replays from.
package commit

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/oklog/ulid/v2"

	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/serialize"

	icyerrors "github.com/icydb/icydb/errors"
)

// MaxCommitBytes bounds one marker's serialized size, so a single runaway
// transaction cannot exhaust memory before it even reaches the store layer.
var MaxCommitBytes = 16 * datasize.MB

// Kind distinguishes the top-level operation a marker represents.
type Kind string

const (
	KindSave   Kind = "Save"
	KindDelete Kind = "Delete"
)

// FieldEntry is one (field name, pre-encoded ordered-component value) pair.
type FieldEntry struct {
	Name  string `codec:"name"`
	Value []byte `codec:"value"`
}

// DataOp is one primary-row mutation recorded in a marker. KeyRaw is the
// primary key's scalar encoding (key.EncodeScalarKey output); Fields is only
// populated for Insert==true (an upsert), and is empty for a delete.
type DataOp struct {
	Entity string       `codec:"entity"`
	KeyRaw []byte       `codec:"key_raw"`
	Fields []FieldEntry `codec:"fields"`
	Insert bool         `codec:"insert"` // true: upsert Fields; false: delete KeyRaw
}

// IndexOp is one secondary-index mutation recorded in a marker.
type IndexOp struct {
	Entity     string   `codec:"entity"`
	IndexName  string   `codec:"index_name"`
	Components [][]byte `codec:"components"` // pre-encoded ordered components
	KeyRaw     []byte   `codec:"key_raw"`     // pre-encoded primary key
	Insert     bool     `codec:"insert"`
}

// Marker is the single persisted commit witness.
type Marker struct {
	ID       string    `codec:"id"` // ULID, monotonically sortable
	Kind     Kind      `codec:"kind"`
	DataOps  []DataOp  `codec:"data_ops"`
	IndexOps []IndexOp `codec:"index_ops"`
}

// Encode serializes the marker, rejecting anything over MaxCommitBytes.
func (m Marker) Encode() ([]byte, error) {
	b, err := serialize.Serialize(m)
	if err != nil {
		return nil, err
	}
	if datasize.ByteSize(len(b)) > MaxCommitBytes {
		return nil, icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginStore,
			"commit marker of %s exceeds limit of %s", datasize.ByteSize(len(b)).HumanReadable(), MaxCommitBytes.HumanReadable())
	}
	return b, nil
}

// Decode reverses Encode.
func Decode(b []byte) (Marker, error) {
	var m Marker
	if err := serialize.Deserialize(b, &m); err != nil {
		return Marker{}, err
	}
	return m, nil
}

// markerEntropy is shared by every NewMarkerID call so that IDs minted within
// the same millisecond still increase.
var (
	markerEntropyMu sync.Mutex
	markerEntropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewMarkerID mints a fresh monotonically-sortable marker ID, so markers
// persisted in the same process ordering also sort lexicographically by ID.
func NewMarkerID() (string, error) {
	markerEntropyMu.Lock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), markerEntropy)
	markerEntropyMu.Unlock()
	if err != nil {
		return "", icyerrors.Newf(icyerrors.ClassInternal, icyerrors.OriginStore, "minting commit marker id: %v", err)
	}
	return id.String(), nil
}

// NewUpsertDataOp builds a DataOp recording an insert/update of pk with the
// given field values.
func NewUpsertDataOp(entity string, pk key.Value, fields map[string]key.Value) (DataOp, error) {
	keyRaw, err := key.EncodeScalarKey(pk)
	if err != nil {
		return DataOp{}, err
	}
	entries := make([]FieldEntry, 0, len(fields))
	for name, v := range fields {
		b, err := key.EncodeOrderedComponent(v)
		if err != nil {
			return DataOp{}, err
		}
		entries = append(entries, FieldEntry{Name: name, Value: b})
	}
	return DataOp{Entity: entity, KeyRaw: keyRaw, Fields: entries, Insert: true}, nil
}

// NewDeleteDataOp builds a DataOp recording the removal of pk.
func NewDeleteDataOp(entity string, pk key.Value) (DataOp, error) {
	keyRaw, err := key.EncodeScalarKey(pk)
	if err != nil {
		return DataOp{}, err
	}
	return DataOp{Entity: entity, KeyRaw: keyRaw, Insert: false}, nil
}

// DecodedFields decodes a DataOp's Fields back into a field-name-keyed map.
func (op DataOp) DecodedFields() (map[string]key.Value, error) {
	out := make(map[string]key.Value, len(op.Fields))
	for _, fe := range op.Fields {
		v, n, err := key.DecodeOrderedComponent(fe.Value)
		if err != nil {
			return nil, err
		}
		if n != len(fe.Value) {
			return nil, icyerrors.StoreCorruptionf("data op field %q decoded %d of %d bytes", fe.Name, n, len(fe.Value))
		}
		out[fe.Name] = v
	}
	return out, nil
}

// DecodedKey decodes a DataOp's primary key.
func (op DataOp) DecodedKey() (key.Value, error) {
	return key.DecodeScalarKey(op.KeyRaw)
}

// NewIndexOp builds an IndexOp recording an index bucket membership change.
func NewIndexOp(entity, indexName string, components []key.Value, pk key.Value, insert bool) (IndexOp, error) {
	encodedComponents := make([][]byte, 0, len(components))
	for _, c := range components {
		b, err := key.EncodeOrderedComponent(c)
		if err != nil {
			return IndexOp{}, err
		}
		encodedComponents = append(encodedComponents, b)
	}
	keyRaw, err := key.EncodeScalarKey(pk)
	if err != nil {
		return IndexOp{}, err
	}
	return IndexOp{Entity: entity, IndexName: indexName, Components: encodedComponents, KeyRaw: keyRaw, Insert: insert}, nil
}

// DecodedComponents decodes an IndexOp's components back into Values.
func (op IndexOp) DecodedComponents() ([]key.Value, error) {
	out := make([]key.Value, 0, len(op.Components))
	for i, b := range op.Components {
		v, n, err := key.DecodeOrderedComponent(b)
		if err != nil {
			return nil, err
		}
		if n != len(b) {
			return nil, icyerrors.StoreCorruptionf("index op component %d decoded %d of %d bytes", i, n, len(b))
		}
		out = append(out, v)
	}
	return out, nil
}

// DecodedKey decodes an IndexOp's primary key.
func (op IndexOp) DecodedKey() (key.Value, error) {
	return key.DecodeScalarKey(op.KeyRaw)
}

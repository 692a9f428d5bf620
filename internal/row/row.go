// Package row implements the row codec: encoding an entity's field values to
// the wire representation stored under a RawDataKey, and decoding them back
// out with primary-key consistency checking (spec.md §3-§4).
package row

import (
	"github.com/icydb/icydb/internal/key"
	"github.com/icydb/icydb/internal/schema"
	"github.com/icydb/icydb/serialize"

	icyerrors "github.com/icydb/icydb/errors"
)

// Row is one decoded entity instance: its field values keyed by field name.
type Row struct {
	Entity string
	Fields map[string]key.Value
}

// wireRow is the CBOR-level representation: a map of pre-encoded,
// order-preserving component bytes per field, rather than raw key.Value
// (whose payload types - big.Int, decimal.Decimal, uint256.Int - are not
// CBOR-native), keeping the wire format self-contained and independent of
// the codec library's handling of those types.
type wireRow struct {
	Entity string            `codec:"entity"`
	Values map[string][]byte `codec:"values"`
}

// Encode serializes fields (keyed by field name, per model) to row bytes.
func Encode(model *schema.EntityModel, fields map[string]key.Value) ([]byte, error) {
	wr := wireRow{Entity: model.Name, Values: make(map[string][]byte, len(fields))}
	for _, f := range model.Fields {
		v, ok := fields[f.Name]
		if !ok {
			continue
		}
		b, err := key.EncodeOrderedComponent(v)
		if err != nil {
			return nil, icyerrors.Newf(icyerrors.ClassSerialize, icyerrors.OriginSerialize,
				"encoding field %q of entity %q: %v", f.Name, model.Name, err)
		}
		wr.Values[f.Name] = b
	}
	return serialize.Serialize(wr)
}

// TryDecode decodes row bytes into a Row, extracting the primary key field
// and validating it against expectedKey if non-nil. A mismatch between the
// row's own primary key field and the caller-supplied expected key is
// always Corruption: the caller found this row filed under a RawDataKey that
// does not match what the row itself claims to be keyed by (spec.md §4).
func TryDecode(model *schema.EntityModel, data []byte, expectedKey *key.Value) (Row, error) {
	var wr wireRow
	if err := serialize.Deserialize(data, &wr); err != nil {
		return Row{}, err
	}
	if wr.Entity != model.Name {
		return Row{}, icyerrors.StoreCorruptionf(
			"row decoded under entity %q but was stored as entity %q", model.Name, wr.Entity)
	}

	fields := make(map[string]key.Value, len(wr.Values))
	for _, f := range model.Fields {
		raw, ok := wr.Values[f.Name]
		if !ok {
			continue
		}
		v, n, err := key.DecodeOrderedComponent(raw)
		if err != nil {
			return Row{}, icyerrors.StoreCorruptionf("decoding field %q of entity %q: %v", f.Name, model.Name, err)
		}
		if n != len(raw) {
			return Row{}, icyerrors.StoreCorruptionf(
				"field %q of entity %q decoded %d of %d bytes, trailing garbage", f.Name, model.Name, n, len(raw))
		}
		fields[f.Name] = v
	}

	pkValue, ok := fields[model.PrimaryKeyField]
	if !ok {
		return Row{}, icyerrors.StoreCorruptionf(
			"row for entity %q is missing its primary key field %q", model.Name, model.PrimaryKeyField)
	}

	if expectedKey != nil {
		gotBytes, err := key.EncodeScalarKey(pkValue)
		if err != nil {
			return Row{}, err
		}
		wantBytes, err := key.EncodeScalarKey(*expectedKey)
		if err != nil {
			return Row{}, err
		}
		if string(gotBytes) != string(wantBytes) {
			return Row{}, icyerrors.StoreCorruptionf(
				"row for entity %q was stored under primary key %x but decodes to primary key %x",
				model.Name, wantBytes, gotBytes)
		}
	}

	return Row{Entity: model.Name, Fields: fields}, nil
}

// PrimaryKey extracts the row's primary key value according to model.
func (r Row) PrimaryKey(model *schema.EntityModel) (key.Value, error) {
	v, ok := r.Fields[model.PrimaryKeyField]
	if !ok {
		return key.Value{}, icyerrors.StoreCorruptionf(
			"row for entity %q is missing its primary key field %q", model.Name, model.PrimaryKeyField)
	}
	return v, nil
}

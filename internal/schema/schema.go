// Package schema describes entity shapes: fields, their kinds, and which
// fields are queryable/keyable, plus the indexes defined over them
// (spec.md §3, §6). EntityModel is built once per entity type and shared by
// the row codec, the index layer, and the predicate compiler.
package schema

import (
	"github.com/icydb/icydb/internal/key"

	icyerrors "github.com/icydb/icydb/errors"
)

// FieldModel describes one field of an entity.
type FieldModel struct {
	Name      string
	Kind      key.Kind
	Queryable bool // may appear in a predicate
	Keyable   bool // may appear as a primary key or index component
}

// IndexModel describes one secondary index: an ordered list of fields and
// whether it enforces uniqueness.
type IndexModel struct {
	Name   string
	Fields []string // field names, in index component order
	Unique bool
}

// EntityModel is the full shape of one entity type.
type EntityModel struct {
	Name           string
	PrimaryKeyField string
	Fields         []FieldModel
	Indexes        []IndexModel

	fieldsByName map[string]FieldModel
}

// Build validates and indexes an EntityModel's field list, rejecting
// index definitions over non-queryable or non-keyable fields (spec.md §3).
func Build(name, primaryKeyField string, fields []FieldModel, indexes []IndexModel) (*EntityModel, error) {
	m := &EntityModel{
		Name:            name,
		PrimaryKeyField: primaryKeyField,
		Fields:          fields,
		Indexes:         indexes,
		fieldsByName:    make(map[string]FieldModel, len(fields)),
	}
	for _, f := range fields {
		m.fieldsByName[f.Name] = f
	}

	pk, ok := m.fieldsByName[primaryKeyField]
	if !ok {
		return nil, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginQuery,
			"entity %q declares primary key field %q which is not in its field list", name, primaryKeyField)
	}
	if !pk.Keyable {
		return nil, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginQuery,
			"entity %q primary key field %q has non-keyable kind %s", name, primaryKeyField, pk.Kind)
	}

	for _, idx := range indexes {
		if len(idx.Fields) == 0 {
			return nil, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginQuery,
				"entity %q index %q declares zero fields", name, idx.Name)
		}
		for _, fname := range idx.Fields {
			f, ok := m.fieldsByName[fname]
			if !ok {
				return nil, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginQuery,
					"entity %q index %q references unknown field %q", name, idx.Name, fname)
			}
			if !f.Queryable {
				return nil, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginQuery,
					"entity %q index %q references non-queryable field %q (kind %s)", name, idx.Name, fname, f.Kind)
			}
			if !f.Keyable {
				return nil, icyerrors.Newf(icyerrors.ClassInvariantViolation, icyerrors.OriginQuery,
					"entity %q index %q references non-keyable field %q (kind %s)", name, idx.Name, fname, f.Kind)
			}
		}
	}

	return m, nil
}

// Field looks up a field by name.
func (m *EntityModel) Field(name string) (FieldModel, bool) {
	f, ok := m.fieldsByName[name]
	return f, ok
}

// PrimaryKeyKind returns the Kind of the primary key field.
func (m *EntityModel) PrimaryKeyKind() key.Kind {
	return m.fieldsByName[m.PrimaryKeyField].Kind
}

// IndexByName looks up an index definition by name.
func (m *EntityModel) IndexByName(name string) (IndexModel, bool) {
	for _, idx := range m.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexModel{}, false
}

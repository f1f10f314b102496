// Package table binds the record manager, B+Tree indexes, and the
// transaction hook into the "Table binding" component described in §2:
// create/open a table backed by a fixed-width record file, its sidecar
// JSON metadata, and whatever secondary indexes it declares.
package table

import (
	"encoding/json"
	"os"

	"github.com/flowbase/reldb-storage/internal/storage/record"
)

// FieldType is one of the string literals §6 fixes for table metadata.
type FieldType string

const (
	FieldInt     FieldType = "ints"
	FieldFloat   FieldType = "floats"
	FieldChar    FieldType = "chars"
	FieldBool    FieldType = "booleans"
	FieldDate    FieldType = "dates"
)

// ByteWidth returns the fixed on-disk width of a field of this type. CHAR
// fields carry their own declared length (passed separately at field
// definition); the others are fixed.
func (t FieldType) ByteWidth(declaredLen int) int {
	switch t {
	case FieldChar:
		return declaredLen
	case FieldFloat:
		return 8
	default: // ints, booleans, dates: 4-byte i32
		return 4
	}
}

// FieldMeta describes one user-visible field of a table.
type FieldMeta struct {
	Name    string    `json:"name"`
	Type    FieldType `json:"type"`
	Offset  int       `json:"offset"` // byte offset within the record, after the hidden field
	Len     int       `json:"len"`
	Visible bool      `json:"visible"`
}

// IndexMeta declares a secondary index over one field.
type IndexMeta struct {
	Name  string `json:"name"`
	Field string `json:"field"`
}

// Meta is the sidecar JSON document for one table (§6).
type Meta struct {
	TableID   int         `json:"table_id"`
	TableName string      `json:"table_name"`
	Fields    []FieldMeta `json:"fields"`
	Indexes   []IndexMeta `json:"indexes"`
}

// RecordSize is the total on-disk record width: the hidden trx field plus
// every field's byte width.
func (m Meta) RecordSize() int {
	size := record.HiddenFieldSize
	for _, f := range m.Fields {
		size += f.Len
	}
	return size
}

// FieldByName looks up a field's metadata by name.
func (m Meta) FieldByName(name string) (FieldMeta, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldMeta{}, false
}

// LoadMeta reads a table's sidecar JSON metadata file.
func LoadMeta(path string) (Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Meta{}, err
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// SaveMeta writes a table's sidecar JSON metadata file.
func SaveMeta(path string, m Meta) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// BuildFields assigns sequential offsets to a list of (name, type,
// declaredLen) field declarations, the way a CREATE TABLE statement would.
func BuildFields(decls []struct {
	Name string
	Type FieldType
	Len  int
}) []FieldMeta {
	out := make([]FieldMeta, 0, len(decls))
	offset := 0
	for _, d := range decls {
		w := d.Type.ByteWidth(d.Len)
		out = append(out, FieldMeta{Name: d.Name, Type: d.Type, Offset: offset, Len: w, Visible: true})
		offset += w
	}
	return out
}

package entity

import (
	"bytes"
	"encoding/json"
)

// FieldMapping is a partial extraction result: section name -> field name -> value.
// A field missing from the map was not read from the document.
type FieldMapping map[string]map[string]string

// Set stores value under section/field, allocating the section as needed.
func (m FieldMapping) Set(section, field, value string) {
	sec, ok := m[section]
	if !ok {
		sec = make(map[string]string)
		m[section] = sec
	}
	sec[field] = value
}

// Has reports whether section/field holds a value.
func (m FieldMapping) Has(section, field string) bool {
	_, ok := m[section][field]
	return ok
}

// Count returns the number of populated fields.
func (m FieldMapping) Count() int {
	n := 0
	for _, sec := range m {
		n += len(sec)
	}
	return n
}

// FieldValue is one field of a complete mapping.
type FieldValue struct {
	Name  string
	Value string
}

// SectionValues is one section of a complete mapping, in template order.
type SectionValues struct {
	Name   string
	Fields []FieldValue
}

// FormFields is a complete field mapping: every section and field of a
// template, in template order, every value a string ("" when unknown).
type FormFields struct {
	Sections []SectionValues
}

// Value returns the value of section/field and whether the pair exists.
func (f FormFields) Value(section, field string) (string, bool) {
	for _, s := range f.Sections {
		if s.Name != section {
			continue
		}
		for _, fv := range s.Fields {
			if fv.Name == field {
				return fv.Value, true
			}
		}
	}
	return "", false
}

// Map returns the nested map form of f.
func (f FormFields) Map() map[string]map[string]string {
	out := make(map[string]map[string]string, len(f.Sections))
	for _, s := range f.Sections {
		sec := make(map[string]string, len(s.Fields))
		for _, fv := range s.Fields {
			sec[fv.Name] = fv.Value
		}
		out[s.Name] = sec
	}
	return out
}

// AsMap is Map with sections typed as map[string]any, the shape decoded
// request bodies arrive in.
func (f FormFields) AsMap() map[string]any {
	out := make(map[string]any, len(f.Sections))
	for name, sec := range f.Map() {
		out[name] = sec
	}
	return out
}

// Filled returns the number of non-empty values.
func (f FormFields) Filled() int {
	n := 0
	for _, s := range f.Sections {
		for _, fv := range s.Fields {
			if fv.Value != "" {
				n++
			}
		}
	}
	return n
}

// MarshalJSON encodes f as a nested object whose key order follows the template.
func (f FormFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range f.Sections {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, s.Name); err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		for j, fv := range s.Fields {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeKey(&buf, fv.Name); err != nil {
				return nil, err
			}
			v, err := json.Marshal(fv.Value)
			if err != nil {
				return nil, err
			}
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	return nil
}

// Package normalize turns partial or stored field mappings into complete,
// template-shaped records.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/entity"
	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

// Report lists where an input diverged from its template. Paths are
// "section" or "section/field".
type Report struct {
	Dropped   []string // present in the input, unknown to the template
	Missing   []string // declared by the template, absent from the input
	NonString []string // present but not a plain string, emptied
}

// Drifted reports whether the input carried data the template could not keep.
func (r Report) Drifted() bool {
	return len(r.Dropped) > 0 || len(r.NonString) > 0
}

// Normalize returns exactly the sections and fields of tpl, in template order.
// A value is kept only when the input holds a plain string for it; anything
// else becomes "". Input keys unknown to tpl are discarded.
func Normalize(in map[string]any, tpl *templates.Template) (entity.FormFields, Report) {
	var rep Report
	out := entity.FormFields{Sections: make([]entity.SectionValues, 0, len(tpl.Sections))}

	for _, s := range tpl.Sections {
		sv := entity.SectionValues{Name: s.Name, Fields: make([]entity.FieldValue, 0, len(s.Fields))}
		raw, hasSection := in[s.Name]
		section, isMap := asSection(raw)
		if hasSection && !isMap {
			rep.NonString = append(rep.NonString, s.Name)
		}
		for _, f := range s.Fields {
			value := ""
			v, ok := section[f.Name]
			switch {
			case !ok:
				rep.Missing = append(rep.Missing, s.Name+"/"+f.Name)
			default:
				if str, isStr := v.(string); isStr {
					value = str
				} else {
					rep.NonString = append(rep.NonString, s.Name+"/"+f.Name)
				}
			}
			sv.Fields = append(sv.Fields, entity.FieldValue{Name: f.Name, Value: value})
		}
		out.Sections = append(out.Sections, sv)
	}

	for _, name := range sortedKeys(in) {
		ts, known := tpl.Section(name)
		if !known {
			rep.Dropped = append(rep.Dropped, name)
			continue
		}
		section, _ := asSection(in[name])
		for _, field := range sortedKeys(section) {
			if !hasField(ts, field) {
				rep.Dropped = append(rep.Dropped, name+"/"+field)
			}
		}
	}
	return out, rep
}

// FromMapping normalizes a parser result.
func FromMapping(m entity.FieldMapping, tpl *templates.Template) (entity.FormFields, Report) {
	in := make(map[string]any, len(m))
	for s, fields := range m {
		sec := make(map[string]any, len(fields))
		for k, v := range fields {
			sec[k] = v
		}
		in[s] = sec
	}
	return Normalize(in, tpl)
}

// FromFields re-normalizes an already complete mapping, e.g. a user edit.
func FromFields(f entity.FormFields, tpl *templates.Template) (entity.FormFields, Report) {
	return FromMapping(entity.FieldMapping(f.Map()), tpl)
}

// FromJSON normalizes a stored payload. The payload must be a JSON object;
// anything inside it that does not fit the template is dropped.
func FromJSON(data []byte, tpl *templates.Template) (entity.FormFields, Report, error) {
	var in map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return entity.FormFields{}, Report{}, common.NewAppError(common.CodeInvalidInput, "stored record payload is not a JSON object", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	out, rep := Normalize(in, tpl)
	return out, rep, nil
}

// Normalizer wraps the package functions with drift logging for stored records.
type Normalizer struct {
	logger *slog.Logger
}

func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Stored normalizes a persisted payload and logs any template drift.
func (n *Normalizer) Stored(recordID string, data []byte, tpl *templates.Template) (entity.FormFields, error) {
	out, rep, err := FromJSON(data, tpl)
	if err != nil {
		n.logger.Error("normalize.stored.decode_error", "record_id", recordID, "template", tpl.Name, "error", err)
		return entity.FormFields{}, err
	}
	n.logDrift(recordID, tpl, rep)
	return out, nil
}

// Edited normalizes user-supplied values before they are stored. Sections
// may be map[string]any or map[string]string.
func (n *Normalizer) Edited(recordID string, in map[string]any, tpl *templates.Template) entity.FormFields {
	out, rep := Normalize(in, tpl)
	n.logDrift(recordID, tpl, rep)
	return out
}

func (n *Normalizer) logDrift(recordID string, tpl *templates.Template, rep Report) {
	if !rep.Drifted() {
		if len(rep.Missing) > 0 {
			n.logger.Debug("normalize.missing", "record_id", recordID, "template", tpl.Name, "missing", rep.Missing)
		}
		return
	}
	n.logger.Warn("normalize.drift",
		"record_id", recordID,
		"template", tpl.Name,
		"dropped", rep.Dropped,
		"non_string", rep.NonString,
		"missing", len(rep.Missing),
	)
}

func asSection(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func hasField(s *templates.Section, name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

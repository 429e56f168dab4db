package llm

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/joseph-ayodele/form-digitizer/constants"
	"github.com/joseph-ayodele/form-digitizer/internal/entity"
	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

// BuildPrompt returns the instruction text sent with a form image. The text is
// a pure function of the template shape.
func BuildPrompt(tpl *templates.Template) string {
	var b strings.Builder

	b.WriteString("Extract information from this ")
	b.WriteString(tpl.Name)
	b.WriteString(" form. For each of the following fields, provide the exact value as written in the form. ")
	b.WriteString(`If a field is not found, respond with "` + constants.NotFound + `" for that field.`)
	b.WriteString("\n\n")

	for _, s := range tpl.Sections {
		b.WriteString("Section: ")
		b.WriteString(s.Name)
		b.WriteString("\n")
		for _, f := range s.Fields {
			b.WriteString("- ")
			b.WriteString(f.Name)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	parts := []string{
		"Format your response as a single JSON object inside a fenced code block marked json, like the example below.",
		"Top-level keys MUST be the section names above and nested keys MUST be the field names of that section, spelled exactly as listed.",
		"Every value MUST be a string. Do not add sections or fields that are not listed.",
		`Use "` + constants.NotFound + `" as the value of any field you cannot read.`,
	}
	b.WriteString(strings.Join(parts, " "))
	b.WriteString("\n\n```json\n")
	b.WriteString(promptExample(tpl))
	b.WriteString("\n```\n")
	return b.String()
}

// promptExample renders the expected reply shape with placeholder values.
func promptExample(tpl *templates.Template) string {
	ff := entity.FormFields{Sections: make([]entity.SectionValues, 0, len(tpl.Sections))}
	for _, s := range tpl.Sections {
		sv := entity.SectionValues{Name: s.Name, Fields: make([]entity.FieldValue, 0, len(s.Fields))}
		for _, f := range s.Fields {
			sv.Fields = append(sv.Fields, entity.FieldValue{Name: f.Name, Value: "value"})
		}
		ff.Sections = append(ff.Sections, sv)
	}
	raw, err := ff.MarshalJSON()
	if err != nil {
		return "{}"
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}

package parser

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/form-digitizer/internal/entity"
	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

func newParser(opts ...Option) *Parser {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func builtin(t *testing.T, name string) *templates.Template {
	t.Helper()
	reg, err := templates.Builtin()
	require.NoError(t, err)
	tpl, err := reg.Get(name)
	require.NoError(t, err)
	return tpl
}

func TestParse_StructuredWinsOverStrayLine(t *testing.T) {
	tpl := builtin(t, "Biodata")
	raw := "Full Name: Someone Else\n\n```json\n" +
		`{"Personal Information": {"Full Name": "Asif Khan", "Gender": "Male"}}` +
		"\n```\n"

	res := newParser().Parse(raw, tpl)

	assert.Equal(t, Decoded, res.Structured)
	assert.False(t, res.Degraded)
	assert.Equal(t, "Asif Khan", res.Fields["Personal Information"]["Full Name"])
	assert.Equal(t, "Male", res.Fields["Personal Information"]["Gender"])
	assert.Equal(t, 2, res.FromStructured)
}

func TestParse_FallbackActivation(t *testing.T) {
	tpl := builtin(t, "Admission")

	res := newParser().Parse("The applicant details follow.\nGender: Male\n", tpl)

	assert.Equal(t, NoBlock, res.Structured)
	assert.True(t, res.Degraded)
	assert.Equal(t, entity.FieldMapping{"Personal Details": {"Gender": "Male"}}, res.Fields)
	assert.Equal(t, 1, res.FromFallback)
}

func TestParse_SentinelSuppressed(t *testing.T) {
	tpl := builtin(t, "Admission")

	tests := []struct {
		name string
		raw  string
	}{
		{name: "structured", raw: "```json\n{\"Personal Details\": {\"Full Name\": \"NOT_FOUND\", \"Gender\": \"Female\"}}\n```"},
		{name: "structured lowercase", raw: `{"Personal Details": {"Full Name": " not_found ", "Gender": "Female"}}`},
		{name: "fallback", raw: "Full Name: NOT_FOUND\nGender: Female"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newParser().Parse(tt.raw, tpl)
			assert.False(t, res.Fields.Has("Personal Details", "Full Name"))
			assert.Equal(t, "Female", res.Fields["Personal Details"]["Gender"])
		})
	}
}

func TestParse_SingleLineTranscription(t *testing.T) {
	tpl := builtin(t, "Admission")

	res := newParser().Parse("Full Name: Jane Doe School: Lincoln High Percentage: 88.5", tpl)

	assert.True(t, res.Degraded)
	assert.Equal(t, entity.FieldMapping{
		"Personal Details":    {"Full Name": "Jane Doe"},
		"Educational Details": {"School": "Lincoln High", "Percentage": "88.5"},
	}, res.Fields)
}

func TestParse_MalformedFallsThrough(t *testing.T) {
	tpl := builtin(t, "Admission")
	raw := "```json\n{\"Personal Details\": {\"Full Name\": \"Jane Doe\",}\n```\nFull Name: Jane Doe\nCity: Springfield"

	res := newParser().Parse(raw, tpl)

	assert.Equal(t, Malformed, res.Structured)
	assert.True(t, res.Degraded)
	assert.Equal(t, "Jane Doe", res.Fields["Personal Details"]["Full Name"])
	assert.Equal(t, "Springfield", res.Fields["Contact Information"]["City"])
}

func TestParse_BraceSpanWithoutFence(t *testing.T) {
	tpl := builtin(t, "Admission")
	raw := `Sure! Here you go: {"Educational Details": {"School": "Lincoln High", "Percentage": 88.5}} Let me know.`

	res := newParser().Parse(raw, tpl)

	assert.Equal(t, Decoded, res.Structured)
	assert.Equal(t, "Lincoln High", res.Fields["Educational Details"]["School"])
	assert.Equal(t, "88.5", res.Fields["Educational Details"]["Percentage"], "numbers keep their literal text")
	assert.NotEmpty(t, res.SchemaIssue, "a number is not the requested string")
}

func TestParse_StructuredValueRules(t *testing.T) {
	tpl := builtin(t, "Bank Account")
	raw := "```JSON\n" + `{
  "bank details": {"bank name": "  Acme Bank  ", "Branch": null, "Form Type": ["x"], "Date": ""},
  "Personal Details": {"Gender": true, "Unknown Field": "ignored"},
  "Extra Section": {"Full Name": "ignored"}
}` + "\n```"

	res := newParser().Parse(raw, tpl)

	require.Equal(t, Decoded, res.Structured)
	assert.Equal(t, entity.FieldMapping{
		"Bank Details":     {"Bank Name": "Acme Bank"},
		"Personal Details": {"Gender": "true"},
	}, res.Fields)
}

func TestParse_StructuredThenFallbackForMissing(t *testing.T) {
	tpl := builtin(t, "Admission")
	raw := "```json\n{\"Personal Details\": {\"Full Name\": \"Jane Doe\"}}\n```\nAlso visible: Postal Code: 97201"

	res := newParser().Parse(raw, tpl)

	assert.False(t, res.Degraded)
	assert.Equal(t, "Jane Doe", res.Fields["Personal Details"]["Full Name"])
	assert.Equal(t, "97201", res.Fields["Contact Information"]["Postal Code"])
	assert.Equal(t, 1, res.FromStructured)
	assert.Equal(t, 1, res.FromFallback)
}

func TestParse_MarkdownAndLineStartPreference(t *testing.T) {
	tpl := builtin(t, "Bank Account")
	raw := "**Bank Name:** First Federal Bank\n" +
		"- Email Address: maria@example.com\n" +
		"Address: 9 Harbor Road\n" +
		"Monthly Income (approx.): 4,500\n"

	res := newParser().Parse(raw, tpl)

	assert.Equal(t, "First Federal Bank", res.Fields["Bank Details"]["Bank Name"])
	assert.Equal(t, "maria@example.com", res.Fields["Contact Information"]["Email Address"])
	assert.Equal(t, "9 Harbor Road", res.Fields["Contact Information"]["Address"])
	assert.Equal(t, "4,500", res.Fields["Personal Details"]["Monthly Income (approx.)"])
}

func TestParse_MetacharactersInFieldNames(t *testing.T) {
	reg, err := templates.New(templates.Template{Name: "Synthetic", Sections: []templates.Section{
		{Name: "Main", Fields: []templates.FieldDescriptor{{Name: "Amount (USD)"}, {Name: "Rate [%]"}, {Name: "a.b"}}},
	}})
	require.NoError(t, err)
	tpl, _ := reg.Get("Synthetic")

	res := newParser().Parse("Amount (USD): 12.50\nRate [%]: 4\naxb: wrong\n", tpl)

	assert.Equal(t, "12.50", res.Fields["Main"]["Amount (USD)"])
	assert.Equal(t, "4", res.Fields["Main"]["Rate [%]"])
	assert.False(t, res.Fields.Has("Main", "a.b"), "field names are literal text")
}

func TestParse_DescriptorPatterns(t *testing.T) {
	tpl := builtin(t, "Admission")
	raw := "Full Name Jane Doe\nPostal Code 97201"

	off := newParser().Parse(raw, tpl)
	assert.Zero(t, off.Fields.Count())

	on := newParser(WithDescriptorPatterns(true)).Parse(raw, tpl)
	assert.Equal(t, "97201", on.Fields["Contact Information"]["Postal Code"])
	assert.Equal(t, 2, on.FromPattern)
	assert.Contains(t, on.Fields["Personal Details"]["Full Name"], "Jane Doe")
}

func TestParse_Empty(t *testing.T) {
	tpl := builtin(t, "Biodata")
	res := newParser().Parse("", tpl)
	assert.Equal(t, NoBlock, res.Structured)
	assert.True(t, res.Degraded)
	assert.Zero(t, res.Fields.Count())
}

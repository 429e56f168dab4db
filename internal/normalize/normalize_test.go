package normalize

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/entity"
	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

func allTemplates(t *testing.T) []*templates.Template {
	t.Helper()
	reg, err := templates.Builtin()
	require.NoError(t, err)
	synth, err := templates.New(
		templates.Template{Name: "Single", Sections: []templates.Section{
			{Name: "Only", Fields: []templates.FieldDescriptor{{Name: "One"}}},
		}},
		templates.Template{Name: "Overlapping", Sections: []templates.Section{
			{Name: "A", Fields: []templates.FieldDescriptor{{Name: "Name"}, {Name: "Date"}}},
			{Name: "B", Fields: []templates.FieldDescriptor{{Name: "Name"}}},
		}},
	)
	require.NoError(t, err)
	return append(reg.All(), synth.All()...)
}

func partialInputs() []map[string]any {
	return []map[string]any{
		nil,
		{},
		{"Personal Details": map[string]any{"Full Name": "Jane Doe", "Nickname": "JD"}},
		{"Personal Information": map[string]string{"Gender": "Male"}, "Legacy": map[string]any{"x": "y"}},
		{"Only": map[string]any{"One": 1, "Two": "2"}},
		{"A": map[string]any{"Name": "n", "Date": nil}, "B": "not a section"},
		{"Contact Details": map[string]any{"City": "  Pune  "}, "Bank Details": map[string]any{"Bank Name": true}},
	}
}

func shape(f entity.FormFields) [][]string {
	var out [][]string
	for _, s := range f.Sections {
		row := []string{s.Name}
		for _, fv := range s.Fields {
			row = append(row, fv.Name)
		}
		out = append(out, row)
	}
	return out
}

func templateShape(tpl *templates.Template) [][]string {
	var out [][]string
	for _, s := range tpl.Sections {
		row := []string{s.Name}
		for _, f := range s.Fields {
			row = append(row, f.Name)
		}
		out = append(out, row)
	}
	return out
}

func TestNormalize_CompletenessAndIdempotence(t *testing.T) {
	for _, tpl := range allTemplates(t) {
		for i, in := range partialInputs() {
			once, _ := Normalize(in, tpl)
			assert.Equal(t, templateShape(tpl), shape(once), "%s input %d", tpl.Name, i)

			twice, rep := FromFields(once, tpl)
			assert.Equal(t, once, twice, "%s input %d", tpl.Name, i)
			assert.False(t, rep.Drifted())
			assert.Empty(t, rep.Missing)
		}
	}
}

func TestNormalize_Values(t *testing.T) {
	reg, err := templates.Builtin()
	require.NoError(t, err)
	tpl, _ := reg.Get("Admission")

	out, rep := Normalize(map[string]any{
		"Personal Details":    map[string]any{"Full Name": "Jane Doe", "Gender": 7, "Nickname": "JD"},
		"Educational Details": map[string]any{"School": "Lincoln High"},
		"Hobbies":             map[string]any{"Chess": "yes"},
	}, tpl)

	v, ok := out.Value("Personal Details", "Full Name")
	require.True(t, ok)
	assert.Equal(t, "Jane Doe", v)
	v, _ = out.Value("Personal Details", "Gender")
	assert.Equal(t, "", v)
	v, _ = out.Value("Educational Details", "School")
	assert.Equal(t, "Lincoln High", v)
	_, ok = out.Value("Personal Details", "Nickname")
	assert.False(t, ok)
	_, ok = out.Value("Hobbies", "Chess")
	assert.False(t, ok)

	assert.Equal(t, []string{"Hobbies", "Personal Details/Nickname"}, rep.Dropped)
	assert.Equal(t, []string{"Personal Details/Gender"}, rep.NonString)
	assert.Len(t, rep.Missing, tpl.FieldCount()-3)
	assert.Equal(t, 2, out.Filled())
}

func TestFromJSON(t *testing.T) {
	reg, err := templates.Builtin()
	require.NoError(t, err)
	tpl, _ := reg.Get("Admission")

	out, _, err := FromJSON([]byte(`{"Personal Details":{"Full Name":"Jane Doe"}}`), tpl)
	require.NoError(t, err)
	v, _ := out.Value("Personal Details", "Full Name")
	assert.Equal(t, "Jane Doe", v)

	b, err := json.Marshal(out)
	require.NoError(t, err)
	again, _, err := FromJSON(b, tpl)
	require.NoError(t, err)
	assert.Equal(t, out, again)

	_, _, err = FromJSON([]byte(`["not","an","object"]`), tpl)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestNormalizer_LogsDrift(t *testing.T) {
	reg, err := templates.Builtin()
	require.NoError(t, err)
	tpl, _ := reg.Get("Admission")

	var buf bytes.Buffer
	n := NewNormalizer(slog.New(slog.NewTextHandler(&buf, nil)))

	_, err = n.Stored("rec-1", []byte(`{"Personal Details":{"Full Name":"Jane"}}`), tpl)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "normalize.drift", "missing fields alone are not drift")

	_, err = n.Stored("rec-2", []byte(`{"Old Section":{"Field":"x"}}`), tpl)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "normalize.drift")
	assert.Contains(t, buf.String(), "rec-2")
}

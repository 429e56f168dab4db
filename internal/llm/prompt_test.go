package llm

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

func builtinTemplate(t *testing.T, name string) *templates.Template {
	t.Helper()
	reg, err := templates.Builtin()
	require.NoError(t, err)
	tpl, err := reg.Get(name)
	require.NoError(t, err)
	return tpl
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	tpl := builtinTemplate(t, "Biodata")
	assert.Equal(t, BuildPrompt(tpl), BuildPrompt(tpl))
}

func TestBuildPrompt_EnumeratesTemplate(t *testing.T) {
	tpl := builtinTemplate(t, "Admission")
	p := BuildPrompt(tpl)

	assert.Contains(t, p, "Admission form")
	assert.Contains(t, p, `"NOT_FOUND"`)
	assert.Contains(t, p, "```json")

	last := -1
	for _, s := range tpl.Sections {
		idx := strings.Index(p, "Section: "+s.Name+"\n")
		require.GreaterOrEqual(t, idx, 0, s.Name)
		assert.Greater(t, idx, last, "sections must follow template order")
		last = idx
		for _, f := range s.Fields {
			assert.Contains(t, p, "- "+f.Name+"\n")
		}
	}
}

func TestBuildPrompt_ExampleMatchesNesting(t *testing.T) {
	tpl := builtinTemplate(t, "Bank Account")
	p := BuildPrompt(tpl)

	m := regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```").FindStringSubmatch(p)
	require.Len(t, m, 2)

	var example map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(m[1]), &example))
	require.Len(t, example, len(tpl.Sections))
	for _, s := range tpl.Sections {
		require.Contains(t, example, s.Name)
		assert.Len(t, example[s.Name], len(s.Fields))
	}
	assert.NoError(t, ValidateJSONAgainstSchema(BuildResponseSchema(tpl), []byte(m[1])))
}

func TestBuildResponseSchema(t *testing.T) {
	tpl := builtinTemplate(t, "Admission")
	schema := BuildResponseSchema(tpl)

	assert.NoError(t, ValidateJSONAgainstSchema(schema, []byte(`{"Personal Details":{"Full Name":"Jane"}}`)))
	assert.Error(t, ValidateJSONAgainstSchema(schema, []byte(`{"Personal Details":{"Full Name":12}}`)))
	assert.Error(t, ValidateJSONAgainstSchema(schema, []byte(`{"Hobbies":{}}`)))
}

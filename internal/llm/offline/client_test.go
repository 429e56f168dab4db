package offline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

func TestAnalyze_CannedPerTemplate(t *testing.T) {
	reg, err := templates.Builtin()
	require.NoError(t, err)
	c := NewClient(reg)

	for _, name := range reg.Names() {
		ctx := common.WithTemplateName(context.Background(), name)
		first, err := c.Analyze(ctx, []byte("img"), "prompt")
		require.NoError(t, err, name)
		assert.NotEmpty(t, first)

		second, err := c.Analyze(ctx, []byte("other"), "other prompt")
		require.NoError(t, err)
		assert.Equal(t, first, second, "offline replies depend only on the template")
	}

	text, _ := c.Analyze(common.WithTemplateName(context.Background(), "Admission"), nil, "")
	assert.Equal(t, "Full Name: Jane Doe School: Lincoln High Percentage: 88.5\n", text)
}

func TestAnalyze_SynthesizesNotFoundReply(t *testing.T) {
	reg, err := templates.New(templates.Template{Name: "Visa", Sections: []templates.Section{
		{Name: "Applicant", Fields: []templates.FieldDescriptor{{Name: "Passport Number"}}},
	}})
	require.NoError(t, err)

	text, err := NewClient(reg).Analyze(common.WithTemplateName(context.Background(), "Visa"), []byte("img"), "p")
	require.NoError(t, err)
	assert.Equal(t, "```json\n{\"Applicant\":{\"Passport Number\":\"NOT_FOUND\"}}\n```", text)
}

func TestAnalyze_OverridesAndUnknown(t *testing.T) {
	c := NewClient(nil, WithResponse("Visa", "Passport Number: X123"))

	text, err := c.Analyze(common.WithTemplateName(context.Background(), "Visa"), []byte("img"), "p")
	require.NoError(t, err)
	assert.Equal(t, "Passport Number: X123", text)

	_, err = c.Analyze(context.Background(), []byte("img"), "p")
	assert.ErrorIs(t, err, common.ErrProviderEmptyResult)
}

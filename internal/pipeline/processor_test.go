package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/llm"
	"github.com/joseph-ayodele/form-digitizer/internal/llm/offline"
	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

var pngImage = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type countingAnalyzer struct {
	calls int32
	reply string
	err   error
	delay time.Duration
}

func (c *countingAnalyzer) Analyze(ctx context.Context, _ []byte, _ string) (string, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return c.reply, c.err
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func registry(t *testing.T) *templates.Registry {
	t.Helper()
	reg, err := templates.Builtin()
	require.NoError(t, err)
	return reg
}

func TestExtract_UnknownTemplateMakesNoProviderCall(t *testing.T) {
	fake := &countingAnalyzer{reply: "Full Name: Jane"}
	p := NewProcessor(discard(), registry(t), fake)

	_, err := p.Extract(context.Background(), pngImage, "NotARealTemplate")

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Zero(t, atomic.LoadInt32(&fake.calls))
}

func TestExtract_EmptyImage(t *testing.T) {
	fake := &countingAnalyzer{}
	p := NewProcessor(discard(), registry(t), fake)

	_, err := p.Extract(context.Background(), nil, "Admission")

	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Zero(t, atomic.LoadInt32(&fake.calls))
}

func TestExtract_AdmissionOffline(t *testing.T) {
	reg := registry(t)
	analyzer := llm.NewAdapter("offline", offline.NewClient(reg), llm.WithLogger(discard()))
	p := NewProcessor(discard(), reg, analyzer)

	res, err := p.Extract(context.Background(), pngImage, "Admission")
	require.NoError(t, err)

	tpl, _ := reg.Get("Admission")
	assert.Equal(t, "Admission", res.Template)
	assert.True(t, res.Degraded)
	assert.Equal(t, 3, res.Fields.Filled())

	want := map[string]string{"Full Name": "Jane Doe", "School": "Lincoln High", "Percentage": "88.5"}
	for _, s := range tpl.Sections {
		for _, f := range s.Fields {
			v, ok := res.Fields.Value(s.Name, f.Name)
			require.True(t, ok, "%s/%s present", s.Name, f.Name)
			assert.Equal(t, want[f.Name], v, "%s/%s", s.Name, f.Name)
		}
	}
}

func TestExtract_SentinelBecomesEmpty(t *testing.T) {
	reg := registry(t)
	fake := &countingAnalyzer{reply: "```json\n{\"Personal Details\": {\"Full Name\": \"NOT_FOUND\", \"Gender\": \"Female\"}}\n```"}
	p := NewProcessor(discard(), reg, fake)

	res, err := p.Extract(context.Background(), pngImage, "Admission")
	require.NoError(t, err)

	assert.False(t, res.Degraded)
	v, ok := res.Fields.Value("Personal Details", "Full Name")
	assert.True(t, ok)
	assert.Equal(t, "", v)
	v, _ = res.Fields.Value("Personal Details", "Gender")
	assert.Equal(t, "Female", v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.calls))
}

func TestExtract_ProviderErrorPropagates(t *testing.T) {
	boom := common.ProviderUnavailable("gemini: status 503", errors.New("overloaded"))
	fake := &countingAnalyzer{err: boom}
	p := NewProcessor(discard(), registry(t), fake)

	res, err := p.Extract(context.Background(), pngImage, "Biodata")

	assert.Nil(t, res)
	assert.Same(t, boom, err)
	assert.ErrorIs(t, err, common.ErrProviderUnavailable)
}

func TestExtract_ProviderTimeout(t *testing.T) {
	reg := registry(t)
	fake := &countingAnalyzer{delay: time.Second, reply: "{}"}
	analyzer := llm.NewAdapter("slow", fake, llm.WithRetries(0, 0), llm.WithLogger(discard()))
	p := NewProcessor(discard(), reg, analyzer, WithProviderTimeout(20*time.Millisecond))

	_, err := p.Extract(context.Background(), pngImage, "Biodata")

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrProviderTimeout)
}

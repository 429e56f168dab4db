package async

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/form-digitizer/constants"
	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/entity"
	"github.com/joseph-ayodele/form-digitizer/internal/pipeline"
)

type stubExtractor struct {
	mu    sync.Mutex
	seen  []string
	fail  string // content that triggers a failure
	delay time.Duration
}

func (s *stubExtractor) Extract(ctx context.Context, image []byte, templateName string) (*pipeline.Result, error) {
	s.mu.Lock()
	s.seen = append(s.seen, string(image))
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, common.ProviderTimeout("stub", ctx.Err())
		}
	}
	if string(image) == s.fail {
		return nil, common.ProviderUnavailable("stub down", nil)
	}
	fields := entity.FormFields{Sections: []entity.SectionValues{
		{Name: "S", Fields: []entity.FieldValue{{Name: "F", Value: string(image)}}},
	}}
	return &pipeline.Result{Template: templateName, Fields: fields}, nil
}

type collector struct {
	mu   sync.Mutex
	jobs []*entity.ExtractJob
	res  []*pipeline.Result
}

func (c *collector) handle(_ context.Context, job *entity.ExtractJob, res *pipeline.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, job)
	c.res = append(c.res, res)
}

func scan(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestExtractQueue_RunsJobsAndReportsOutcome(t *testing.T) {
	dir := t.TempDir()
	stub := &stubExtractor{fail: "bad"}
	col := &collector{}
	q := NewExtractQueue(stub, discard(), WithWorkers(3), WithResultHandler(col.handle))

	ctx := context.Background()
	for _, c := range []string{"one", "two", "bad"} {
		_, err := q.Enqueue(ctx, Job{Path: scan(t, dir, c+".png", c), TemplateName: "Admission"})
		require.NoError(t, err)
	}
	_, err := q.Enqueue(ctx, Job{Path: filepath.Join(dir, "missing.png"), TemplateName: "Admission"})
	require.NoError(t, err)

	q.Shutdown(ctx)

	require.Len(t, col.jobs, 4)
	byPath := map[string]int{}
	for i, j := range col.jobs {
		byPath[filepath.Base(j.Path)] = i
		assert.NotNil(t, j.FinishedAt)
	}

	ok := col.jobs[byPath["one.png"]]
	assert.Equal(t, constants.JobStatusExtracted, ok.Status)
	assert.Equal(t, 1, ok.Filled)
	assert.NotNil(t, col.res[byPath["one.png"]])

	failed := col.jobs[byPath["bad.png"]]
	assert.Equal(t, constants.JobStatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "stub down")
	assert.Nil(t, col.res[byPath["bad.png"]])

	missing := col.jobs[byPath["missing.png"]]
	assert.Equal(t, constants.JobStatusFailed, missing.Status)
	assert.Len(t, stub.seen, 3, "unreadable files never reach the extractor")
}

func TestExtractQueue_Timeout(t *testing.T) {
	dir := t.TempDir()
	stub := &stubExtractor{delay: time.Second}
	col := &collector{}
	q := NewExtractQueue(stub, discard(), WithProcessTimeout(20*time.Millisecond), WithResultHandler(col.handle))

	_, err := q.Enqueue(context.Background(), Job{Path: scan(t, dir, "slow.png", "slow"), TemplateName: "Biodata"})
	require.NoError(t, err)
	q.Shutdown(context.Background())

	require.Len(t, col.jobs, 1)
	assert.Equal(t, constants.JobStatusFailed, col.jobs[0].Status)
}

func TestExtractQueue_EnqueueAfterShutdown(t *testing.T) {
	q := NewExtractQueue(&stubExtractor{}, discard())
	q.Shutdown(context.Background())

	_, err := q.Enqueue(context.Background(), Job{Path: "x.png"})
	assert.True(t, errors.Is(err, ErrQueueClosed))
	q.Shutdown(context.Background())
}

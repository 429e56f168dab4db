package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/form-digitizer/constants"
	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/entity"
	"github.com/joseph-ayodele/form-digitizer/internal/ingest"
	"github.com/joseph-ayodele/form-digitizer/internal/pipeline"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("extract queue is shut down")

// Job asks for one scan file to be extracted with a template.
type Job struct {
	ID           uuid.UUID
	Path         string
	TemplateName string
	SubmittedAt  time.Time
	TraceID      string
}

// Extractor is the part of pipeline.Processor the queue depends on.
type Extractor interface {
	Extract(ctx context.Context, image []byte, templateName string) (*pipeline.Result, error)
}

// ResultHandler receives every finished job. res is nil when the job failed;
// job.Status and job.ErrorMessage describe the outcome either way. The
// context carries the job's remaining deadline.
type ResultHandler func(ctx context.Context, job *entity.ExtractJob, res *pipeline.Result)

// ExtractQueue runs extraction jobs on a fixed pool of workers.
type ExtractQueue struct {
	proc     Extractor
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
	maxBytes int64
	handler  ResultHandler

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*ExtractQueue)

func WithWorkers(n int) Option {
	return func(q *ExtractQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ExtractQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ExtractQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithMaxFileBytes rejects larger scan files before extraction.
func WithMaxFileBytes(n int64) Option {
	return func(q *ExtractQueue) { q.maxBytes = n }
}

func WithResultHandler(h ResultHandler) Option {
	return func(q *ExtractQueue) { q.handler = h }
}

func NewExtractQueue(proc Extractor, logger *slog.Logger, opts ...Option) *ExtractQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ExtractQueue{
		proc:     proc,
		logger:   logger,
		workers:  2,
		timeout:  2 * time.Minute,
		maxBytes: constants.DefaultMaxImageBytes,
		ch:       make(chan Job, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ExtractQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("worker started", "worker_id", workerID)
				for job := range q.ch {
					q.run(workerID, job)
				}
				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ExtractQueue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if job.TraceID != "" {
		ctx = common.WithRequestID(ctx, job.TraceID)
	}

	rec := &entity.ExtractJob{
		ID:           job.ID,
		Path:         job.Path,
		TemplateName: job.TemplateName,
		Status:       constants.JobStatusRunning,
		StartedAt:    time.Now(),
	}

	res, err := q.extract(ctx, job)
	finished := time.Now()
	rec.FinishedAt = &finished
	if err != nil {
		rec.Status = constants.JobStatusFailed
		rec.ErrorMessage = err.Error()
		q.logger.Error("queue.job.failed",
			"worker_id", workerID,
			"job_id", job.ID,
			"path", job.Path,
			"error", err,
			"elapsed_ms", finished.Sub(rec.StartedAt).Milliseconds(),
		)
		res = nil
	} else {
		rec.Status = constants.JobStatusExtracted
		rec.Degraded = res.Degraded
		rec.Filled = res.Fields.Filled()
		q.logger.Info("queue.job.ok",
			"worker_id", workerID,
			"job_id", job.ID,
			"path", job.Path,
			"filled", rec.Filled,
			"degraded", rec.Degraded,
			"elapsed_ms", finished.Sub(rec.StartedAt).Milliseconds(),
		)
	}
	if q.handler != nil {
		q.handler(ctx, rec, res)
	}
}

func (q *ExtractQueue) extract(ctx context.Context, job Job) (*pipeline.Result, error) {
	image, err := ingest.ReadScan(job.Path, q.maxBytes)
	if err != nil {
		return nil, err
	}
	return q.proc.Extract(ctx, image, job.TemplateName)
}

// Enqueue submits job, blocking while the queue is full until ctx is done.
// A zero job ID is replaced with a fresh one, which is returned.
func (q *ExtractQueue) Enqueue(ctx context.Context, job Job) (uuid.UUID, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "path", job.Path)
		return uuid.Nil, ErrQueueClosed
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queued file for extraction", "job_id", job.ID, "path", job.Path)
		return job.ID, nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "path", job.Path)
	select {
	case q.ch <- job:
		return job.ID, nil
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish, or for
// ctx to end.
func (q *ExtractQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}

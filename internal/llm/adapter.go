package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/form-digitizer/constants"
	"github.com/joseph-ayodele/form-digitizer/internal/common"
)

// Adapter guards a provider: it validates input before any network call,
// normalizes failures to the provider taxonomy, rate limits and retries.
//
// Retry policy: ErrProviderUnavailable is retried up to maxRetries times with
// exponential backoff, ErrProviderTimeout is retried once, anything else is
// returned immediately.
type Adapter struct {
	name          string
	provider      DocumentAnalyzer
	limiter       *rate.Limiter
	maxRetries    int
	backoff       time.Duration
	maxImageBytes int64
	logger        *slog.Logger
}

type AdapterOption func(*Adapter)

// WithRetries sets the retry budget for unavailable providers and the base backoff.
func WithRetries(maxRetries int, backoff time.Duration) AdapterOption {
	return func(a *Adapter) {
		if maxRetries >= 0 {
			a.maxRetries = maxRetries
		}
		if backoff >= 0 {
			a.backoff = backoff
		}
	}
}

// WithRateLimit caps calls per second across all callers. perSecond <= 0 disables it.
func WithRateLimit(perSecond float64, burst int) AdapterOption {
	return func(a *Adapter) {
		if perSecond <= 0 {
			a.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithMaxImageBytes(n int64) AdapterOption {
	return func(a *Adapter) {
		if n > 0 {
			a.maxImageBytes = n
		}
	}
}

func WithLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAdapter wraps provider, named for logs and error messages.
func NewAdapter(name string, provider DocumentAnalyzer, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		name:          name,
		provider:      provider,
		maxRetries:    2,
		backoff:       500 * time.Millisecond,
		maxImageBytes: constants.DefaultMaxImageBytes,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the provider name.
func (a *Adapter) Name() string { return a.name }

// Analyze implements DocumentAnalyzer.
func (a *Adapter) Analyze(ctx context.Context, image []byte, instructions string) (string, error) {
	if err := a.validate(image, instructions); err != nil {
		return "", err
	}

	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
		ctx = common.WithRequestID(ctx, rid)
	}
	start := time.Now()

	var (
		lastErr        error
		unavailRetries int
		timeoutRetries int
	)
	for attempt := 0; ; attempt++ {
		text, err := a.attempt(ctx, image, instructions)
		if err == nil {
			a.logger.Info("llm.analyze.ok",
				"req_id", rid,
				"provider", a.name,
				"attempts", attempt+1,
				"text_len", len(text),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return text, nil
		}
		lastErr = err

		retry := false
		switch {
		case ctx.Err() != nil:
		case errors.Is(err, common.ErrProviderTimeout):
			retry = timeoutRetries < 1
			timeoutRetries++
		case errors.Is(err, common.ErrProviderUnavailable):
			retry = unavailRetries < a.maxRetries
			unavailRetries++
		}
		if !retry {
			break
		}

		wait := a.backoff * (1 << uint(attempt))
		a.logger.Warn("llm.analyze.retry",
			"req_id", rid,
			"provider", a.name,
			"attempt", attempt+1,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
		select {
		case <-ctx.Done():
			return "", a.contextFailure(ctx, lastErr)
		case <-time.After(wait):
		}
	}

	a.logger.Error("llm.analyze.failed",
		"req_id", rid,
		"provider", a.name,
		"error", lastErr,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return "", lastErr
}

// attempt performs one rate-limited provider call with failures mapped onto the taxonomy.
func (a *Adapter) attempt(ctx context.Context, image []byte, instructions string) (string, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			if ctx.Err() == nil {
				// the limiter refuses waits that would outlive the deadline
				return "", common.ProviderTimeout(a.name+" rate limit wait exceeds deadline", err)
			}
			return "", a.contextFailure(ctx, err)
		}
	}
	text, err := a.provider.Analyze(ctx, image, instructions)
	if err != nil {
		if ctx.Err() != nil {
			return "", a.contextFailure(ctx, err)
		}
		return "", Classify(a.name, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", common.ProviderEmpty(a.name + " returned no analyzable text")
	}
	return text, nil
}

func (a *Adapter) contextFailure(ctx context.Context, cause error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return common.ProviderTimeout(a.name+" call exceeded its deadline", cause)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return Classify(a.name, cause)
}

func (a *Adapter) validate(image []byte, instructions string) error {
	if len(image) == 0 {
		return common.InvalidInput("image is empty")
	}
	if int64(len(image)) > a.maxImageBytes {
		return common.InvalidInput("image is %d bytes, limit is %d", len(image), a.maxImageBytes)
	}
	if mt := SniffMIME(image); !constants.IsAllowedMIME(mt) {
		return common.InvalidInput("unsupported image type %q", mt)
	}
	if strings.TrimSpace(instructions) == "" {
		return common.InvalidInput("instructions are empty")
	}
	return nil
}

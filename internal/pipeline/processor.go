package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/entity"
	"github.com/joseph-ayodele/form-digitizer/internal/llm"
	"github.com/joseph-ayodele/form-digitizer/internal/parser"
	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

// Result is the outcome of one extraction.
type Result struct {
	Template string
	Fields   entity.FormFields
	// Degraded is set when the provider reply had no usable structured block
	// and values came from the line fallback.
	Degraded bool
	Parse    parser.Result
	RawText  string
}

// Processor coordinates template lookup, provider analysis and parsing.
// It holds no per-call state and is safe for concurrent use.
type Processor struct {
	Logger   *slog.Logger
	Registry *templates.Registry
	Analyze  *AnalyzeStage
	Parse    *ParseStage
}

type Option func(*Processor)

// WithProviderTimeout bounds each provider call. Exceeding it fails the
// extraction with common.ErrProviderTimeout.
func WithProviderTimeout(d time.Duration) Option {
	return func(p *Processor) { p.Analyze.Timeout = d }
}

// WithParser replaces the default parser, e.g. to enable descriptor patterns.
func WithParser(ps *parser.Parser) Option {
	return func(p *Processor) { p.Parse.Parser = ps }
}

func NewProcessor(logger *slog.Logger, reg *templates.Registry, analyzer llm.DocumentAnalyzer, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		Logger:   logger,
		Registry: reg,
		Analyze:  NewAnalyzeStage(analyzer, 0, logger),
		Parse:    NewParseStage(nil, logger),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Extract turns a form image into a complete record for templateName. It makes
// exactly one adapter call, or none when the input is rejected.
func (p *Processor) Extract(ctx context.Context, image []byte, templateName string) (*Result, error) {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
		ctx = common.WithRequestID(ctx, rid)
	}

	if len(image) == 0 {
		return nil, common.InvalidInput("image is empty")
	}
	tpl, err := p.Registry.Get(templateName)
	if err != nil {
		p.Logger.Warn("pipeline.extract.unknown_template", "req_id", rid, "template", templateName)
		return nil, common.NewAppError(common.CodeInvalidInput, "unknown template "+templateName, common.ErrInvalidInput)
	}

	start := time.Now()
	raw, err := p.Analyze.Run(ctx, image, tpl)
	if err != nil {
		return nil, err
	}

	fields, pres := p.Parse.Run(raw, tpl)
	p.Logger.Info("pipeline.extract.ok",
		"req_id", rid,
		"template", tpl.Name,
		"filled", fields.Filled(),
		"fields", tpl.FieldCount(),
		"degraded", pres.Degraded,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return &Result{
		Template: tpl.Name,
		Fields:   fields,
		Degraded: pres.Degraded,
		Parse:    pres,
		RawText:  raw,
	}, nil
}

// Templates lists the registered templates in catalog order.
func (p *Processor) Templates() []*templates.Template {
	return p.Registry.All()
}

package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/llm"
	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

// AnalyzeStage builds the prompt for a template and sends it with the image
// to the document analyzer.
type AnalyzeStage struct {
	Analyzer llm.DocumentAnalyzer
	Timeout  time.Duration // zero means the caller's context decides
	Logger   *slog.Logger
}

func NewAnalyzeStage(analyzer llm.DocumentAnalyzer, timeout time.Duration, logger *slog.Logger) *AnalyzeStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeStage{Analyzer: analyzer, Timeout: timeout, Logger: logger}
}

// Run returns the provider's raw text. Provider failures are returned unchanged.
func (s *AnalyzeStage) Run(ctx context.Context, image []byte, tpl *templates.Template) (string, error) {
	prompt := llm.BuildPrompt(tpl)
	ctx = common.WithTemplateName(ctx, tpl.Name)
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := s.Analyzer.Analyze(ctx, image, prompt)
	if err != nil {
		s.Logger.Error("pipeline.analyze.failed",
			"req_id", common.RequestIDFromContext(ctx),
			"template", tpl.Name,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}
	s.Logger.Info("pipeline.analyze.ok",
		"req_id", common.RequestIDFromContext(ctx),
		"template", tpl.Name,
		"prompt_len", len(prompt),
		"text_len", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return raw, nil
}

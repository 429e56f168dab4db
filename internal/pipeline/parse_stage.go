package pipeline

import (
	"log/slog"

	"github.com/joseph-ayodele/form-digitizer/internal/entity"
	"github.com/joseph-ayodele/form-digitizer/internal/normalize"
	"github.com/joseph-ayodele/form-digitizer/internal/parser"
	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

// ParseStage maps raw provider text onto a template and completes it.
type ParseStage struct {
	Parser *parser.Parser
	Logger *slog.Logger
}

func NewParseStage(p *parser.Parser, logger *slog.Logger) *ParseStage {
	if logger == nil {
		logger = slog.Default()
	}
	if p == nil {
		p = parser.New(logger)
	}
	return &ParseStage{Parser: p, Logger: logger}
}

// Run parses raw and normalizes the partial mapping to the full template shape.
func (s *ParseStage) Run(raw string, tpl *templates.Template) (entity.FormFields, parser.Result) {
	res := s.Parser.Parse(raw, tpl)
	fields, _ := normalize.FromMapping(res.Fields, tpl)
	return fields, res
}

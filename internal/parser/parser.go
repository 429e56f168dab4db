// Package parser maps raw provider text onto a template's fields.
//
// Structured output is tried first: a fenced json block, else the widest
// brace-delimited span. Fields it did not populate are then looked up as
// "<field name>: <value>" lines anywhere in the text. The NOT_FOUND sentinel
// never becomes a value.
package parser

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/joseph-ayodele/form-digitizer/constants"
	"github.com/joseph-ayodele/form-digitizer/internal/entity"
	"github.com/joseph-ayodele/form-digitizer/internal/llm"
	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

// Result is a partial field mapping plus diagnostics about how it was built.
type Result struct {
	Fields entity.FieldMapping

	Structured     Outcome
	FromStructured int
	FromFallback   int
	FromPattern    int

	// Degraded is set when no well-formed structured block was available and
	// values came from the text fallback only.
	Degraded bool

	// SchemaIssue describes how a decoded block diverged from the expected
	// reply shape. It is informational.
	SchemaIssue string
}

type Options struct {
	// DescriptorPatterns enables a last pass using each field's catalog pattern.
	DescriptorPatterns bool
}

type Option func(*Parser)

func WithDescriptorPatterns(enabled bool) Option {
	return func(p *Parser) { p.opts.DescriptorPatterns = enabled }
}

// Parser is safe for concurrent use.
type Parser struct {
	opts     Options
	logger   *slog.Logger
	matchers sync.Map // *templates.Template -> *fieldMatchers
}

func New(logger *slog.Logger, opts ...Option) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Parser{logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse maps raw onto tpl. It never fails: unreadable input yields an empty mapping.
func (p *Parser) Parse(raw string, tpl *templates.Template) Result {
	res := Result{Fields: entity.FieldMapping{}}

	st := decodeStructured(raw)
	res.Structured = st.Outcome
	switch st.Outcome {
	case Decoded:
		res.FromStructured = fromStructured(st.Object, tpl, res.Fields)
		if err := llm.ValidateJSONAgainstSchema(llm.BuildResponseSchema(tpl), []byte(st.Block)); err != nil {
			res.SchemaIssue = err.Error()
			p.logger.Debug("parser.structured.schema_mismatch", "template", tpl.Name, "error", err)
		}
	case Malformed:
		p.logger.Warn("parser.structured.malformed",
			"template", tpl.Name,
			"block_len", len(st.Block),
			"error", st.Err,
		)
	}

	fm := p.matchersFor(tpl)
	for _, s := range tpl.Sections {
		for _, f := range s.Fields {
			if res.Fields.Has(s.Name, f.Name) {
				continue
			}
			if v, ok := fm.find(raw, f.Name); ok && isValue(v) {
				res.Fields.Set(s.Name, f.Name, v)
				res.FromFallback++
			}
		}
	}

	if p.opts.DescriptorPatterns {
		for _, s := range tpl.Sections {
			for _, f := range s.Fields {
				if res.Fields.Has(s.Name, f.Name) || f.Regexp() == nil {
					continue
				}
				m := f.Regexp().FindStringSubmatch(raw)
				if len(m) < 2 {
					continue
				}
				if v := strings.TrimSpace(m[1]); isValue(v) {
					res.Fields.Set(s.Name, f.Name, v)
					res.FromPattern++
				}
			}
		}
	}

	res.Degraded = st.Outcome != Decoded
	if res.Degraded {
		p.logger.Warn("parser.degraded",
			"template", tpl.Name,
			"structured", st.Outcome.String(),
			"from_fallback", res.FromFallback,
			"from_pattern", res.FromPattern,
			"fields", tpl.FieldCount(),
		)
	} else {
		p.logger.Debug("parser.ok",
			"template", tpl.Name,
			"from_structured", res.FromStructured,
			"from_fallback", res.FromFallback,
			"fields", tpl.FieldCount(),
		)
	}
	return res
}

func (p *Parser) matchersFor(tpl *templates.Template) *fieldMatchers {
	if v, ok := p.matchers.Load(tpl); ok {
		return v.(*fieldMatchers)
	}
	v, _ := p.matchers.LoadOrStore(tpl, compileMatchers(tpl))
	return v.(*fieldMatchers)
}

// fromStructured copies template fields out of a decoded reply and returns how many it set.
func fromStructured(obj map[string]any, tpl *templates.Template, out entity.FieldMapping) int {
	n := 0
	for _, s := range tpl.Sections {
		sv, ok := lookup(obj, s.Name)
		if !ok {
			continue
		}
		section, ok := sv.(map[string]any)
		if !ok {
			continue
		}
		for _, f := range s.Fields {
			fv, ok := lookup(section, f.Name)
			if !ok {
				continue
			}
			text, ok := scalarText(fv)
			if !ok || !isValue(text) {
				continue
			}
			out.Set(s.Name, f.Name, text)
			n++
		}
	}
	return n
}

// isValue reports whether text is a real value rather than blank or the sentinel.
func isValue(text string) bool {
	t := strings.TrimSpace(text)
	return t != "" && !strings.EqualFold(t, constants.NotFound)
}

package offline

import (
	"context"
	"embed"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/form-digitizer/constants"
	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/entity"
	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

//go:embed responses/*.txt
var responses embed.FS

var builtin = map[string]string{
	constants.TemplateBiodata:     "responses/biodata.txt",
	constants.TemplateAdmission:   "responses/admission.txt",
	constants.TemplateBankAccount: "responses/bank_account.txt",
}

// Client is a deterministic stand-in for a vision provider. It answers with
// fixed text per template, selected by the template name carried in the
// context (common.WithTemplateName). Templates without canned text get a
// reply marking every field NOT_FOUND.
type Client struct {
	reg    *templates.Registry
	canned map[string]string
	logger *slog.Logger
}

type Option func(*Client)

// WithResponse overrides the canned text for one template.
func WithResponse(templateName, text string) Option {
	return func(c *Client) { c.canned[templateName] = text }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(reg *templates.Registry, opts ...Option) *Client {
	c := &Client{reg: reg, canned: make(map[string]string), logger: slog.Default()}
	for name, path := range builtin {
		b, err := responses.ReadFile(path)
		if err != nil {
			continue
		}
		c.canned[name] = string(b)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze implements llm.DocumentAnalyzer.
func (c *Client) Analyze(ctx context.Context, image []byte, instructions string) (string, error) {
	name := common.TemplateNameFromContext(ctx)
	if text, ok := c.canned[name]; ok {
		c.logger.Debug("llm.offline.canned", "template", name, "text_len", len(text))
		return text, nil
	}
	if c.reg != nil {
		if tpl, err := c.reg.Get(name); err == nil {
			c.logger.Debug("llm.offline.synthesized", "template", name)
			return notFoundReply(tpl), nil
		}
	}
	return "", common.ProviderEmpty("offline provider has no response for template " + strings.TrimSpace(name))
}

func notFoundReply(tpl *templates.Template) string {
	ff := entity.FormFields{}
	for _, s := range tpl.Sections {
		sv := entity.SectionValues{Name: s.Name}
		for _, f := range s.Fields {
			sv.Fields = append(sv.Fields, entity.FieldValue{Name: f.Name, Value: constants.NotFound})
		}
		ff.Sections = append(ff.Sections, sv)
	}
	b, _ := ff.MarshalJSON()
	return "```json\n" + string(b) + "\n```"
}

package templates

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/form-digitizer/internal/common"
)

//go:embed catalog.yaml
var builtinCatalog []byte

//go:embed catalog.schema.json
var catalogSchema []byte

// ErrTemplateNotFound is returned by Get for names outside the catalog.
var ErrTemplateNotFound = fmt.Errorf("template %w", common.ErrNotFound)

// FieldDescriptor is a field name plus the pattern locating its value in plain text.
type FieldDescriptor struct {
	Name    string `yaml:"name" json:"name"`
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`

	re *regexp.Regexp
}

// Regexp returns the compiled descriptor pattern.
func (f FieldDescriptor) Regexp() *regexp.Regexp { return f.re }

type Section struct {
	Name   string            `yaml:"name" json:"name"`
	Fields []FieldDescriptor `yaml:"fields" json:"fields"`
}

// Template is the declared shape of one form type. Treat it as read-only.
type Template struct {
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Sections    []Section `yaml:"sections" json:"sections"`
}

// Section looks up a section by exact name.
func (t *Template) Section(name string) (*Section, bool) {
	for i := range t.Sections {
		if t.Sections[i].Name == name {
			return &t.Sections[i], true
		}
	}
	return nil, false
}

// FieldCount is the number of fields across all sections.
func (t *Template) FieldCount() int {
	n := 0
	for _, s := range t.Sections {
		n += len(s.Fields)
	}
	return n
}

// FieldNames returns each distinct field name once, in template order.
func (t *Template) FieldNames() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range t.Sections {
		for _, f := range s.Fields {
			if _, ok := seen[f.Name]; ok {
				continue
			}
			seen[f.Name] = struct{}{}
			out = append(out, f.Name)
		}
	}
	return out
}

type catalog struct {
	Version   int        `yaml:"version"`
	Templates []Template `yaml:"templates"`
}

// Registry is an immutable, ordered set of templates.
type Registry struct {
	byName map[string]*Template
	order  []string
}

// New validates templates and builds a registry. Fields without a pattern get
// a "<name>: <value>" line pattern.
func New(tpls ...Template) (*Registry, error) {
	if len(tpls) == 0 {
		return nil, common.InvalidInput("template catalog is empty")
	}
	r := &Registry{byName: make(map[string]*Template, len(tpls))}
	for i := range tpls {
		t := cloneTemplate(tpls[i])
		if err := compile(t); err != nil {
			return nil, err
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, common.InvalidInput("duplicate template %q", t.Name)
		}
		r.byName[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	return r, nil
}

// Builtin returns the registry for the embedded catalog.
func Builtin() (*Registry, error) {
	return Load(builtinCatalog)
}

// Open loads the catalog at path, or the embedded one when path is empty.
func Open(path string) (*Registry, error) {
	if path == "" {
		return Builtin()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template catalog %s: %w", path, err)
	}
	return Load(data)
}

// Load parses a YAML catalog, checks it against the catalog schema and builds a registry.
func Load(data []byte) (*Registry, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, common.NewAppError(common.CodeInvalidInput, "parse template catalog", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	if err := validateCatalog(doc); err != nil {
		return nil, err
	}
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, common.NewAppError(common.CodeInvalidInput, "decode template catalog", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	return New(c.Templates...)
}

func validateCatalog(doc any) error {
	// Round-trip through JSON so the validator sees JSON-native types.
	b, err := json.Marshal(doc)
	if err != nil {
		return common.InvalidInput("template catalog is not a plain document: %v", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return common.InvalidInput("template catalog: %v", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("catalog.schema.json", bytes.NewReader(catalogSchema)); err != nil {
		return fmt.Errorf("add catalog schema: %w", err)
	}
	schema, err := compiler.Compile("catalog.schema.json")
	if err != nil {
		return fmt.Errorf("compile catalog schema: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return common.InvalidInput("template catalog does not match schema: %v", err)
	}
	return nil
}

func compile(t *Template) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return common.InvalidInput("template name is empty")
	}
	if len(t.Sections) == 0 {
		return common.InvalidInput("template %q has no sections", t.Name)
	}
	sections := make(map[string]struct{}, len(t.Sections))
	for si := range t.Sections {
		s := &t.Sections[si]
		if s.Name == "" {
			return common.InvalidInput("template %q: section %d has no name", t.Name, si)
		}
		if _, dup := sections[s.Name]; dup {
			return common.InvalidInput("template %q: duplicate section %q", t.Name, s.Name)
		}
		sections[s.Name] = struct{}{}

		fields := make(map[string]struct{}, len(s.Fields))
		for fi := range s.Fields {
			f := &s.Fields[fi]
			if f.Name == "" {
				return common.InvalidInput("template %q section %q: field %d has no name", t.Name, s.Name, fi)
			}
			if _, dup := fields[f.Name]; dup {
				return common.InvalidInput("template %q section %q: duplicate field %q", t.Name, s.Name, f.Name)
			}
			fields[f.Name] = struct{}{}

			if f.Pattern == "" {
				f.Pattern = regexp.QuoteMeta(f.Name) + `[:\s]*([^\r\n]+)`
			}
			re, err := regexp.Compile(f.Pattern)
			if err != nil {
				return common.InvalidInput("template %q field %q: pattern: %v", t.Name, f.Name, err)
			}
			if re.NumSubexp() < 1 {
				return common.InvalidInput("template %q field %q: pattern has no capture group", t.Name, f.Name)
			}
			f.re = re
		}
	}
	return nil
}

func cloneTemplate(t Template) *Template {
	out := &Template{Name: t.Name, Description: t.Description, Sections: make([]Section, len(t.Sections))}
	for i, s := range t.Sections {
		out.Sections[i] = Section{Name: s.Name, Fields: append([]FieldDescriptor(nil), s.Fields...)}
	}
	return out
}

// Get returns the template registered under name.
func (r *Registry) Get(name string) (*Template, error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, common.NewAppError(common.CodeNotFound, fmt.Sprintf("unknown template %q", name), ErrTemplateNotFound)
	}
	return t, nil
}

// Names returns the template names in catalog order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// All returns the templates in catalog order.
func (r *Registry) All() []*Template {
	out := make([]*Template, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

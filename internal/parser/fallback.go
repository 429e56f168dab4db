package parser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

// linePatterns are the compiled "<field>: <value>" matchers for one field.
type linePatterns struct {
	lineStart *regexp.Regexp // label at the start of a line, optionally bulleted
	anywhere  *regexp.Regexp // label after any non-word character
}

// fieldMatchers holds the fallback matchers for a template.
type fieldMatchers struct {
	fields map[string]linePatterns
	// nextLabel finds the start of another field label inside a captured value.
	nextLabel *regexp.Regexp
}

const (
	emphasis   = `[*_]*`
	labelTail  = emphasis + `[ \t]*:[ \t]*` + emphasis + `[ \t]*([^\r\n]*)`
	bullet     = `(?:[-*•][ \t]+|\d+[.)][ \t]+)?`
	wordBefore = `(?:^|[^\p{L}\p{N}_])`
)

func compileMatchers(tpl *templates.Template) *fieldMatchers {
	names := tpl.FieldNames()
	fm := &fieldMatchers{fields: make(map[string]linePatterns, len(names))}

	for _, name := range names {
		label := regexp.QuoteMeta(name)
		fm.fields[name] = linePatterns{
			lineStart: regexp.MustCompile(`(?m)^[ \t]*` + bullet + emphasis + label + labelTail),
			anywhere:  regexp.MustCompile(`(?m)` + wordBefore + emphasis + label + labelTail),
		}
	}

	// Longest names first so "Email Address" wins over "Address".
	sorted := append([]string(nil), names...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	alts := make([]string, len(sorted))
	for i, n := range sorted {
		alts[i] = regexp.QuoteMeta(n)
	}
	fm.nextLabel = regexp.MustCompile(`[ \t]+` + emphasis + `(?:` + strings.Join(alts, "|") + `)` + emphasis + `[ \t]*:`)
	return fm
}

// find returns the value written after "<name>:" in raw, preferring a label at
// the start of a line. The value stops at the end of the line or at the next
// template field label on the same line.
func (fm *fieldMatchers) find(raw, name string) (string, bool) {
	lp, ok := fm.fields[name]
	if !ok {
		return "", false
	}
	m := lp.lineStart.FindStringSubmatch(raw)
	if m == nil {
		m = lp.anywhere.FindStringSubmatch(raw)
	}
	if m == nil {
		return "", false
	}
	value := m[1]
	if loc := fm.nextLabel.FindStringIndex(value); loc != nil {
		value = value[:loc[0]]
	}
	value = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(value), "*_"))
	return value, true
}

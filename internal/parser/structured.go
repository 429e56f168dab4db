package parser

import (
	"encoding/json"
	"io"
	"regexp"
	"sort"
	"strings"
)

// Outcome is the result of the structured decode step.
type Outcome int

const (
	// NoBlock means the text held neither a fenced json block nor a brace span.
	NoBlock Outcome = iota
	// Malformed means a candidate block was found but did not decode to an object.
	Malformed
	// Decoded means the candidate decoded to a JSON object.
	Decoded
)

func (o Outcome) String() string {
	switch o {
	case Malformed:
		return "malformed"
	case Decoded:
		return "decoded"
	default:
		return "no_block"
	}
}

var fencedJSON = regexp.MustCompile("(?is)```[ \t]*json[ \t]*\\r?\\n?(.*?)```")

// structured holds the decode step's result. Object is set only for Decoded.
type structured struct {
	Outcome Outcome
	Block   string
	Object  map[string]any
	Err     error
}

// findBlock returns the structured candidate in raw: the first fenced block
// marked json, otherwise the span from the first '{' to the last '}'.
func findBlock(raw string) (string, bool) {
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

func decodeStructured(raw string) structured {
	block, ok := findBlock(raw)
	if !ok {
		return structured{Outcome: NoBlock}
	}

	dec := json.NewDecoder(strings.NewReader(block))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return structured{Outcome: Malformed, Block: block, Err: err}
	}
	// Trailing garbage after the object means the span was not one object.
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errTrailingData
		}
		return structured{Outcome: Malformed, Block: block, Err: err}
	}
	if obj == nil {
		return structured{Outcome: Malformed, Block: block, Err: errNotObject}
	}
	return structured{Outcome: Decoded, Block: block, Object: obj}
}

type parseError string

func (e parseError) Error() string { return string(e) }

const (
	errTrailingData parseError = "trailing data after JSON object"
	errNotObject    parseError = "JSON value is not an object"
)

// lookup finds key in obj, exactly or else case-insensitively.
func lookup(obj map[string]any, key string) (any, bool) {
	if v, ok := obj[key]; ok {
		return v, true
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	want := strings.TrimSpace(key)
	for _, k := range keys {
		if strings.EqualFold(strings.TrimSpace(k), want) {
			return obj[k], true
		}
	}
	return nil, false
}

// scalarText renders a decoded JSON scalar as text. Objects, arrays and null
// are not values.
func scalarText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}

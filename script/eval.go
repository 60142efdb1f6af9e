package script

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var templateExpr = regexp.MustCompile(`\${([^}]+)}`)

// segment is one piece of a parsed template: either literal text or a
// compiled expression.
type segment struct {
	text string
	code Script
}

// Template is a string with embedded ${...} expressions, compiled once and
// evaluated against per-run globals.
type Template struct {
	raw      string
	segments []segment
}

// NewTemplate parses and compiles all ${...} expressions in raw.
func NewTemplate(engine Compiler, raw string) (*Template, error) {
	openCount := strings.Count(raw, "${")
	closeCount := strings.Count(raw, "}")
	if openCount > closeCount {
		return nil, fmt.Errorf("unclosed template expression in string: %q", raw)
	}
	if openCount == 0 {
		return &Template{raw: raw}, nil
	}

	matches := templateExpr.FindAllStringSubmatchIndex(raw, -1)
	var segments []segment
	var lastEnd int
	for _, match := range matches {
		if match[0] > lastEnd {
			segments = append(segments, segment{text: raw[lastEnd:match[0]]})
		}
		expr := raw[match[2]:match[3]]
		code, err := engine.Compile(context.Background(), expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile template expression %q: %w", expr, err)
		}
		segments = append(segments, segment{code: code})
		lastEnd = match[1]
	}
	if lastEnd < len(raw) {
		segments = append(segments, segment{text: raw[lastEnd:]})
	}

	return &Template{raw: raw, segments: segments}, nil
}

// Eval renders the template with the given globals.
func (t *Template) Eval(ctx context.Context, globals map[string]any) (string, error) {
	if len(t.segments) == 0 {
		return t.raw, nil
	}
	var b strings.Builder
	for _, seg := range t.segments {
		if seg.code == nil {
			b.WriteString(seg.text)
			continue
		}
		result, err := seg.code.Evaluate(ctx, globals)
		if err != nil {
			return "", fmt.Errorf("failed to evaluate template expression: %w", err)
		}
		b.WriteString(result.String())
	}
	return b.String(), nil
}

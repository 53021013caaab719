// Package render resolves recipe templates against setup metadata,
// producing the concrete manifest a build consumes. Rendering is pure: the
// same template and metadata always produce the same manifest, and any
// reference to a key the metadata does not carry is an error.
package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/conda-tools/condactl/pkg/setupmeta"
)

var (
	setDirective    = regexp.MustCompile(`^\{%-?\s*set\s+([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.+?)\s*-?%\}$`)
	forDirective    = regexp.MustCompile(`^\{%-?\s*for\s+([A-Za-z_][A-Za-z0-9_]*)\s+in\s+(.+?)\s*-?%\}$`)
	endforDirective = regexp.MustCompile(`^\{%-?\s*endfor\s*-?%\}$`)
	substitution    = regexp.MustCompile(`\{\{(.*?)\}\}`)
	comment         = regexp.MustCompile(`\{#.*?#\}`)
)

type env struct {
	vars map[string]any
}

type line struct {
	n    int
	text string
}

// Render resolves a recipe template against the metadata document. The
// metadata's content is exposed to expressions as "data".
func Render(template []byte, md *setupmeta.Metadata) ([]byte, error) {
	e := &env{vars: map[string]any{}}
	if md != nil {
		e.vars["data"] = md.Doc()
	}

	raw := strings.Split(strings.ReplaceAll(string(template), "\r\n", "\n"), "\n")
	lines := make([]line, 0, len(raw))
	for i, text := range raw {
		lines = append(lines, line{n: i + 1, text: text})
	}

	out, err := e.renderLines(lines)
	if err != nil {
		return nil, err
	}
	return []byte(strings.Join(out, "\n")), nil
}

func (e *env) renderLines(lines []line) ([]string, error) {
	var out []string
	i := 0
	for i < len(lines) {
		l := lines[i]

		text, only, err := stripComments(l)
		if err != nil {
			return nil, err
		}
		if only {
			i++
			continue
		}

		trimmed := strings.TrimSpace(text)

		if m := setDirective.FindStringSubmatch(trimmed); m != nil {
			v, err := e.eval(m[2])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", l.n, err)
			}
			e.vars[m[1]] = v
			i++
			continue
		}

		if m := forDirective.FindStringSubmatch(trimmed); m != nil {
			body, end, err := forBody(lines, i)
			if err != nil {
				return nil, err
			}
			items, err := e.eval(m[2])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", l.n, err)
			}
			seq, ok := items.([]any)
			if !ok {
				return nil, fmt.Errorf("line %d: for loop over %s, not a list", l.n, typeName(items))
			}

			name := m[1]
			saved, had := e.vars[name]
			for _, item := range seq {
				e.vars[name] = item
				rendered, err := e.renderLines(body)
				if err != nil {
					return nil, err
				}
				out = append(out, rendered...)
			}
			if had {
				e.vars[name] = saved
			} else {
				delete(e.vars, name)
			}

			i = end + 1
			continue
		}

		if endforDirective.MatchString(trimmed) {
			return nil, fmt.Errorf("line %d: endfor without a matching for", l.n)
		}
		if strings.Contains(text, "{%") || strings.Contains(text, "%}") {
			return nil, fmt.Errorf("line %d: unsupported or misplaced directive: %s", l.n, trimmed)
		}

		rendered, err := e.substitute(l.n, text)
		if err != nil {
			return nil, err
		}
		out = append(out, rendered)
		i++
	}
	return out, nil
}

// forBody collects the lines between a for directive and its matching
// endfor, honoring nesting. It returns the body and the endfor's index.
func forBody(lines []line, start int) ([]line, int, error) {
	depth := 1
	for i := start + 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i].text)
		switch {
		case forDirective.MatchString(trimmed):
			depth++
		case endforDirective.MatchString(trimmed):
			depth--
			if depth == 0 {
				return lines[start+1 : i], i, nil
			}
		}
	}
	return nil, 0, fmt.Errorf("line %d: for without a matching endfor", lines[start].n)
}

// stripComments removes template comments from a line. The second return
// is true when the line held nothing but a comment and should be dropped.
func stripComments(l line) (string, bool, error) {
	text := l.text
	if !strings.Contains(text, "{#") && !strings.Contains(text, "#}") {
		return text, false, nil
	}
	stripped := comment.ReplaceAllString(text, "")
	if strings.Contains(stripped, "{#") || strings.Contains(stripped, "#}") {
		return "", false, fmt.Errorf("line %d: unterminated comment", l.n)
	}
	if strings.TrimSpace(stripped) == "" {
		return "", true, nil
	}
	return strings.TrimRight(stripped, " \t"), false, nil
}

func (e *env) substitute(n int, text string) (string, error) {
	var firstErr error
	out := substitution.ReplaceAllStringFunc(text, func(match string) string {
		if firstErr != nil {
			return match
		}
		expr := match[2 : len(match)-2]
		v, err := e.eval(expr)
		if err != nil {
			firstErr = fmt.Errorf("line %d: %w", n, err)
			return match
		}
		s, err := stringify(v)
		if err != nil {
			firstErr = fmt.Errorf("line %d: %w", n, err)
			return match
		}
		return s
	})
	if firstErr != nil {
		return "", firstErr
	}
	if strings.Contains(out, "{{") || strings.Contains(out, "}}") {
		return "", fmt.Errorf("line %d: unbalanced substitution braces", n)
	}
	return out, nil
}

package notify

import (
	"fmt"
	"sort"
	"strings"
)

// Fallback used for school_name when the dispatching user has no school row.
const DefaultSchoolName = "Your School"

// SyntaxError reports malformed placeholder syntax in a template body.
type SyntaxError struct {
	Pos    int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("template syntax error at offset %d: %s", e.Pos, e.Reason)
}

// MissingVariablesError reports placeholders required by a template that the
// (merged) variable mapping does not provide. Recipient is filled in by the
// dispatch layer so the caller learns which entry is defective.
type MissingVariablesError struct {
	Recipient string
	Missing   []string
}

func (e *MissingVariablesError) Error() string {
	return fmt.Sprintf("missing required variables for %s: %s", e.Recipient, strings.Join(e.Missing, ", "))
}

// ExtractVariables scans a template body and returns the distinct placeholder
// names it references, sorted. Doubled braces are literals. A brace that
// never closes, a bare closing brace, a nested opening brace inside a
// placeholder and an empty placeholder are all syntax errors.
func ExtractVariables(body string) ([]string, error) {
	seen := map[string]struct{}{}

	for i := 0; i < len(body); {
		switch body[i] {
		case '{':
			if i+1 < len(body) && body[i+1] == '{' {
				i += 2
				continue
			}
			end := strings.IndexByte(body[i+1:], '}')
			if end < 0 {
				return nil, &SyntaxError{Pos: i, Reason: "unclosed '{'"}
			}
			name := body[i+1 : i+1+end]
			if name == "" {
				return nil, &SyntaxError{Pos: i, Reason: "empty placeholder"}
			}
			if strings.IndexByte(name, '{') >= 0 {
				return nil, &SyntaxError{Pos: i, Reason: "'{' inside placeholder"}
			}
			seen[name] = struct{}{}
			i += end + 2
		case '}':
			if i+1 < len(body) && body[i+1] == '}' {
				i += 2
				continue
			}
			return nil, &SyntaxError{Pos: i, Reason: "single '}' without matching '{'"}
		default:
			i++
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Rendered holds the two channel views of one recipient's message. Filled
// keeps newlines literal and is what SMS sends and what the delivery log
// stores; HTML wraps the same content with <br> line breaks for email.
type Rendered struct {
	Filled string
	HTML   string
}

// MergeSystemVars copies the recipient mapping and injects the two system
// variables the dispatching user contributes.
func MergeSystemVars(vars map[string]string, teacherName, schoolName string) map[string]string {
	merged := make(map[string]string, len(vars)+2)
	for k, v := range vars {
		merged[k] = v
	}
	merged["teacher_name"] = teacherName
	if schoolName == "" {
		schoolName = DefaultSchoolName
	}
	merged["school_name"] = schoolName
	return merged
}

// Render validates that vars covers every placeholder in body, then
// substitutes. Pure: no side effects, callers own the mapping.
func Render(body string, vars map[string]string) (Rendered, error) {
	required, err := ExtractVariables(body)
	if err != nil {
		return Rendered{}, err
	}

	var missing []string
	for _, name := range required {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Rendered{}, &MissingVariablesError{Missing: missing}
	}

	filled := substitute(body, vars)
	return Rendered{
		Filled: filled,
		HTML:   wrapEmailHTML(strings.ReplaceAll(filled, "\n", "<br>")),
	}, nil
}

// substitute assumes body already passed ExtractVariables, so brace structure
// is known-good and every placeholder resolves.
func substitute(body string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(body))

	for i := 0; i < len(body); {
		switch body[i] {
		case '{':
			if body[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(body[i+1:], '}')
			b.WriteString(vars[body[i+1:i+1+end]])
			i += end + 2
		case '}':
			// must be doubled
			b.WriteByte('}')
			i += 2
		default:
			b.WriteByte(body[i])
			i++
		}
	}
	return b.String()
}

func wrapEmailHTML(content string) string {
	return `<!DOCTYPE html>
<html>
<head>
  <style>
    body { font-family: Arial, sans-serif; background-color: #f4f4f4; margin: 0; padding: 0; }
    .email-container { background-color: #ffffff; margin: 40px auto; padding: 20px; max-width: 600px; border-radius: 8px; box-shadow: 0 2px 8px rgba(0,0,0,0.1); }
    .header { text-align: center; padding-bottom: 20px; }
    .header h1 { color: #5f82ff; margin: 0; font-size: 24px; }
    .content { font-size: 16px; color: #333; line-height: 1.6; }
  </style>
</head>
<body>
  <div class="email-container">
    <div class="header"><h1>Notify</h1></div>
    <div class="content">` + content + `</div>
  </div>
</body>
</html>`
}

package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// dateLayouts are accepted date inputs, normalized to 2006-01-02 on render.
var dateLayouts = []string{"2006-01-02", "02.01.2006", "01/02/2006", time.RFC3339}

// ValidatePlaceholders checks the supplied values against the template's
// variable descriptors, coercing types where possible. Every violation is
// reported, not just the first. On success the returned map holds the
// coerced string values ready for rendering.
func (t *ContractTemplate) ValidatePlaceholders(values map[string]string) (map[string]string, map[string]string) {
	coerced := make(map[string]string, len(values))
	violations := make(map[string]string)

	for _, v := range t.Variables {
		raw, present := values[v.Name]
		if !present || strings.TrimSpace(raw) == "" {
			if v.Default != "" {
				coerced[v.Name] = v.Default
				continue
			}
			if v.Required {
				violations[v.Name] = "this field is required"
			}
			continue
		}

		out, err := coerceValue(&v, raw)
		if err != "" {
			violations[v.Name] = err
			continue
		}
		coerced[v.Name] = out
	}

	// Values without a descriptor pass through untouched.
	for name, raw := range values {
		if _, ok := coerced[name]; !ok {
			if _, violated := violations[name]; !violated {
				coerced[name] = raw
			}
		}
	}

	if len(violations) > 0 {
		return nil, violations
	}
	return coerced, nil
}

func coerceValue(v *Variable, raw string) (string, string) {
	raw = strings.TrimSpace(raw)

	switch v.Type {
	case VariableTypeNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", "must be a number"
		}
		if v.Min != nil && n < *v.Min {
			return "", fmt.Sprintf("must be at least %g", *v.Min)
		}
		if v.Max != nil && n > *v.Max {
			return "", fmt.Sprintf("must be at most %g", *v.Max)
		}
		return strconv.FormatFloat(n, 'f', -1, 64), ""

	case VariableTypeEmail:
		if !emailPattern.MatchString(raw) {
			return "", "must be a valid email address"
		}
		return strings.ToLower(raw), ""

	case VariableTypeDate:
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, raw); err == nil {
				return d.Format("2006-01-02"), ""
			}
		}
		return "", "must be a valid date"

	case VariableTypeSelect:
		for _, opt := range v.Options {
			if opt == raw {
				return raw, ""
			}
		}
		return "", "must be one of: " + strings.Join(v.Options, ", ")

	default: // text
		if v.MinLen > 0 && len(raw) < v.MinLen {
			return "", fmt.Sprintf("must be at least %d characters", v.MinLen)
		}
		if v.MaxLen > 0 && len(raw) > v.MaxLen {
			return "", fmt.Sprintf("must be at most %d characters", v.MaxLen)
		}
		if v.Pattern != "" {
			re, err := regexp.Compile(v.Pattern)
			if err != nil || !re.MatchString(raw) {
				return "", "does not match the required pattern"
			}
		}
		return raw, ""
	}
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)

// Render substitutes {{name}} tokens in the template body. An unresolved
// placeholder stays verbatim in the output; rendering never fails silently.
func (t *ContractTemplate) Render(values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(t.Body, func(token string) string {
		name := placeholderPattern.FindStringSubmatch(token)[1]
		if val, ok := values[name]; ok {
			return val
		}
		return token
	})
}

// PlaceholderNames lists the distinct placeholder tokens in the body.
func (t *ContractTemplate) PlaceholderNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(t.Body, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Package template renders prompt templates with {{identifier}} placeholders.
//
// The placeholder syntax is part of the service's stored data format and is
// matched exactly: two braces, one or more word characters, two braces, no
// interior whitespace. Rendering is a pure string transform.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// placeholderRE matches {{identifier}} with no whitespace tolerance.
var placeholderRE = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render substitutes every placeholder whose identifier is present in vars.
//
// Placeholders with no matching variable are left verbatim so that missing
// optional variables never corrupt the output. String values are substituted
// as-is; all other values use their canonical JSON form.
func Render(template string, vars map[string]any) string {
	return placeholderRE.ReplaceAllStringFunc(template, func(match string) string {
		name := match[2 : len(match)-2]
		value, ok := vars[name]
		if !ok {
			return match
		}
		return stringify(value)
	})
}

// ExtractVariables returns the placeholder identifiers in template, in
// first-occurrence order, de-duplicated.
func ExtractVariables(template string) []string {
	matches := placeholderRE.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}

// Validation reports whether a variable mapping covers a template.
type Validation struct {
	Valid   bool
	Missing []string
}

// Validate returns the identifiers extracted from template that are absent
// from vars. A missing variable is not an error at render time; Validate
// exists so callers can check coverage up front.
func Validate(template string, vars map[string]any) Validation {
	var missing []string
	for _, name := range ExtractVariables(template) {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	return Validation{Valid: len(missing) == 0, Missing: missing}
}

// SelfMap maps every identifier in template to its own name. Useful for
// previewing a template's shape without real values.
func SelfMap(template string) map[string]any {
	names := ExtractVariables(template)
	vars := make(map[string]any, len(names))
	for _, name := range names {
		vars[name] = name
	}
	return vars
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}

package promptwire

import (
	tmpl "github.com/haasonsaas/promptwire/internal/template"
)

// TemplateValidation reports whether a template's placeholders are fully
// covered by a variable mapping.
type TemplateValidation = tmpl.Validation

// RenderTemplate substitutes {{placeholder}} occurrences in template with
// values from vars. Placeholders without a value are left verbatim, so a
// partially-filled template can be rendered again later.
func RenderTemplate(template string, vars map[string]any) string {
	return tmpl.Render(template, vars)
}

// ExtractTemplateVariables returns the distinct placeholder names in
// template, in order of first occurrence.
func ExtractTemplateVariables(template string) []string {
	return tmpl.ExtractVariables(template)
}

// ValidateTemplate reports which placeholders vars leaves uncovered.
func ValidateTemplate(template string, vars map[string]any) TemplateValidation {
	return tmpl.Validate(template, vars)
}

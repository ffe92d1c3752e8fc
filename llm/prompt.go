package llm

import "strings"

// RenderTemplate substitutes {{name}} placeholders in a prompt template.
// Unknown placeholders and literal braces (JSON examples inside prompts)
// pass through untouched.
func RenderTemplate(tpl string, vars map[string]string) string {
	out := tpl
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}

package util

import (
	"fmt"
	"strings"
	"text/template"
)

var templateFuncs = template.FuncMap{
	"default": func(fallback, v any) any {
		if v == nil || v == "" {
			return fallback
		}
		return v
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join": func(sep string, items []any) string {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, sep)
	},
}

// RenderTemplate executes text as a text/template against state. Text without
// "{{" is returned unchanged so plain instructions never fail to parse.
func RenderTemplate(text string, state map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("instruction").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse instruction: %w", err)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, state); err != nil {
		return "", fmt.Errorf("render instruction: %w", err)
	}
	return sb.String(), nil
}

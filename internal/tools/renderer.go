package tools

import (
	"bytes"
	"fmt"
	"text/template"
)

// RenderTemplateString procesa un template que es STRING.
// Used for task descriptions such as:
//
//	"Analyze the patient's symptoms ({{ .symptoms }})"
//
// Missing keys render as empty text.
func RenderTemplateString(tpl string, params map[string]string) (string, error) {
	if params == nil {
		params = map[string]string{}
	}
	t, err := template.New("tpl").
		Option("missingkey=zero").
		Parse(tpl)
	if err != nil {
		return "", fmt.Errorf("error parseando template string: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("error ejecutando template string: %w", err)
	}
	return buf.String(), nil
}

package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Unit Alert]
Unit: {{.UnitID}}
Status: {{.Classification}}
Reading Time: {{.Timestamp}}
pH: {{.PH}} (healthy range {{.HealthyRange}})
Temperature: {{.Temp}}
EC: {{.EC}}
{{ if .Extra }}Other: {{.Extra}}
{{ end }}Suggestion: {{.Suggestion}}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	UnitID         string
	Timestamp      string
	Classification string
	PH             string
	Temp           string
	EC             string
	Extra          string
	HealthyRange   string
	Suggestion     string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("unit-alert").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alert template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

package fill

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldKind is the interaction type of one fillable form field.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindCheckbox FieldKind = "checkbox"
	KindChoice   FieldKind = "choice"
	KindDate     FieldKind = "date"
)

// TemplateField describes one fillable field of a form template.
// Cell anchors the field in the produced worksheet; a field without a cell
// is declared but not fillable.
type TemplateField struct {
	Name    string    `json:"name"`
	Kind    FieldKind `json:"kind"`
	Cell    string    `json:"cell"`
	Options []string  `json:"options,omitempty"` // for choice fields
}

// Template is a form template descriptor.
type Template struct {
	Name   string          `json:"name"`
	Sheet  string          `json:"sheet,omitempty"` // defaults to "Form"
	Fields []TemplateField `json:"fields"`
}

// ParseTemplate decodes a caller-supplied template descriptor.
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse form template: %w", err)
	}
	if t.Sheet == "" {
		t.Sheet = "Form"
	}
	for i, f := range t.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return nil, fmt.Errorf("form template: field %d has empty name", i)
		}
		if f.Kind == "" {
			t.Fields[i].Kind = KindText
		}
	}
	return &t, nil
}

// FillableFields returns the fields that can actually receive a value.
func (t *Template) FillableFields() []TemplateField {
	var out []TemplateField
	for _, f := range t.Fields {
		if strings.TrimSpace(f.Cell) != "" {
			out = append(out, f)
		}
	}
	return out
}

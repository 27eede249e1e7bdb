// Package schema holds the category field schemas and target form schemas.
// Schemas are read-only inputs supplied by configuration; the built-in
// registry is only the fallback when no schema file is configured.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joseph-ayodele/docufill/constants"
)

// FieldType is the scalar type a field is expected to hold.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeDate     FieldType = "date"
	TypeNumber   FieldType = "number"
	TypeEmail    FieldType = "email"
	TypePhone    FieldType = "phone"
	TypeCheckbox FieldType = "checkbox"
	TypeChoice   FieldType = "choice"
)

// FieldSpec describes one expected field of a document category.
type FieldSpec struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
	Aliases  []string  `json:"aliases,omitempty"`
	// Pattern, when set, must match the whole extracted value.
	Pattern string `json:"pattern,omitempty"`
	// Checksum names a check-digit algorithm ("icao9303") applied by the
	// validator to structured IDs.
	Checksum string `json:"checksum,omitempty"`
}

// CategorySchema is the expected field set for one document category.
type CategorySchema struct {
	Category constants.Category `json:"category"`
	Fields   []FieldSpec        `json:"fields"`
}

// Field returns the definition for a field name, matching case-insensitively.
func (c CategorySchema) Field(name string) (FieldSpec, bool) {
	for _, f := range c.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// FieldNames returns the candidate field names in schema order.
func (c CategorySchema) FieldNames() []string {
	out := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		out[i] = f.Name
	}
	return out
}

// TargetField is one field of the destination form's schema.
type TargetField struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
}

// TargetSchema is the ordered field set expected by the destination form.
type TargetSchema []TargetField

// ParseTargetSchema decodes a caller-supplied target schema.
func ParseTargetSchema(data []byte) (TargetSchema, error) {
	var ts TargetSchema
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("parse target schema: %w", err)
	}
	for i, f := range ts {
		if strings.TrimSpace(f.Name) == "" {
			return nil, fmt.Errorf("target schema: field %d has empty name", i)
		}
		if f.Type == "" {
			ts[i].Type = TypeText
		}
	}
	return ts, nil
}

// Registry resolves category schemas. It is immutable after load.
type Registry struct {
	byCategory map[constants.Category]CategorySchema
}

// LoadRegistry reads a schema registry from a JSON file. The file is a list
// of CategorySchema objects and fully replaces the built-in defaults for the
// categories it names.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema registry: %w", err)
	}
	var schemas []CategorySchema
	if err := json.Unmarshal(data, &schemas); err != nil {
		return nil, fmt.Errorf("parse schema registry: %w", err)
	}
	reg := DefaultRegistry()
	for _, cs := range schemas {
		if cs.Category == "" {
			return nil, fmt.Errorf("schema registry: entry without category")
		}
		reg.byCategory[cs.Category] = cs
	}
	return reg, nil
}

// ForCategory returns the schema for a category, falling back to Generic.
func (r *Registry) ForCategory(cat constants.Category) CategorySchema {
	if cs, ok := r.byCategory[cat]; ok {
		return cs
	}
	return r.byCategory[constants.Generic]
}

// DefaultRegistry returns the built-in fallback schemas.
func DefaultRegistry() *Registry {
	reg := &Registry{byCategory: map[constants.Category]CategorySchema{}}

	reg.byCategory[constants.Passport] = CategorySchema{
		Category: constants.Passport,
		Fields: []FieldSpec{
			{Name: "full_name", Type: TypeText, Required: true, Aliases: []string{"name", "holder_name", "surname_and_given_names"}},
			{Name: "passport_number", Type: TypeText, Required: true, Checksum: "icao9303",
				Aliases: []string{"passport_no", "document_number", "doc_number", "number"},
				Pattern: `^[A-Z0-9]{6,9}[0-9]?$`},
			{Name: "date_of_birth", Type: TypeDate, Required: true, Aliases: []string{"dob", "birth_date", "birthdate"}},
			{Name: "issue_date", Type: TypeDate, Aliases: []string{"date_of_issue", "issued"}},
			{Name: "expiry_date", Type: TypeDate, Required: true, Aliases: []string{"date_of_expiry", "expiration_date", "expires", "valid_until"}},
			{Name: "nationality", Type: TypeText, Aliases: []string{"citizenship"}},
			{Name: "sex", Type: TypeText, Aliases: []string{"gender"}},
			{Name: "place_of_birth", Type: TypeText, Aliases: []string{"birth_place"}},
		},
	}

	reg.byCategory[constants.NationalID] = CategorySchema{
		Category: constants.NationalID,
		Fields: []FieldSpec{
			{Name: "full_name", Type: TypeText, Required: true, Aliases: []string{"name", "holder_name"}},
			{Name: "id_number", Type: TypeText, Required: true, Aliases: []string{"identity_number", "national_id", "document_number", "card_number"}},
			{Name: "date_of_birth", Type: TypeDate, Required: true, Aliases: []string{"dob", "birth_date"}},
			{Name: "issue_date", Type: TypeDate, Aliases: []string{"date_of_issue"}},
			{Name: "expiry_date", Type: TypeDate, Aliases: []string{"date_of_expiry", "valid_until"}},
			{Name: "address", Type: TypeText, Aliases: []string{"residence", "home_address"}},
		},
	}

	reg.byCategory[constants.DriversLicense] = CategorySchema{
		Category: constants.DriversLicense,
		Fields: []FieldSpec{
			{Name: "full_name", Type: TypeText, Required: true, Aliases: []string{"name"}},
			{Name: "license_number", Type: TypeText, Required: true, Aliases: []string{"licence_number", "dl_number", "document_number"}},
			{Name: "date_of_birth", Type: TypeDate, Required: true, Aliases: []string{"dob", "birth_date"}},
			{Name: "issue_date", Type: TypeDate, Aliases: []string{"date_of_issue", "issued"}},
			{Name: "expiry_date", Type: TypeDate, Required: true, Aliases: []string{"date_of_expiry", "expiration_date"}},
			{Name: "license_class", Type: TypeText, Aliases: []string{"class", "categories"}},
			{Name: "address", Type: TypeText, Aliases: []string{"home_address"}},
		},
	}

	reg.byCategory[constants.ResidencePermit] = CategorySchema{
		Category: constants.ResidencePermit,
		Fields: []FieldSpec{
			{Name: "full_name", Type: TypeText, Required: true, Aliases: []string{"name"}},
			{Name: "permit_number", Type: TypeText, Required: true, Aliases: []string{"document_number", "card_number"}},
			{Name: "date_of_birth", Type: TypeDate, Required: true, Aliases: []string{"dob", "birth_date"}},
			{Name: "issue_date", Type: TypeDate, Aliases: []string{"date_of_issue"}},
			{Name: "expiry_date", Type: TypeDate, Required: true, Aliases: []string{"date_of_expiry", "valid_until"}},
			{Name: "permit_type", Type: TypeText, Aliases: []string{"category", "status"}},
		},
	}

	reg.byCategory[constants.Generic] = CategorySchema{
		Category: constants.Generic,
		Fields: []FieldSpec{
			{Name: "full_name", Type: TypeText, Aliases: []string{"name", "applicant_name"}},
			{Name: "date_of_birth", Type: TypeDate, Aliases: []string{"dob", "birth_date"}},
			{Name: "document_number", Type: TypeText, Aliases: []string{"id_number", "reference_number", "number"}},
			{Name: "issue_date", Type: TypeDate, Aliases: []string{"date_of_issue"}},
			{Name: "expiry_date", Type: TypeDate, Aliases: []string{"date_of_expiry"}},
			{Name: "address", Type: TypeText, Aliases: []string{"home_address", "street_address"}},
			{Name: "email", Type: TypeEmail, Aliases: []string{"email_address", "e_mail"}},
			{Name: "phone", Type: TypePhone, Aliases: []string{"phone_number", "telephone", "mobile"}},
		},
	}

	return reg
}

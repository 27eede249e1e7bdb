package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/schema"
)

func TestBuildFieldsJSONSchemaAcceptsWellFormedOutput(t *testing.T) {
	cs := schema.DefaultRegistry().ForCategory(constants.Passport)
	js := BuildFieldsJSONSchema(cs)

	good := []byte(`{"fields":{
		"full_name":{"value":"JOHN SMITH","confidence":92},
		"date_of_birth":{"value":"03/04/1985","confidence":85,"raw_text":"Date of Birth: 03/04/1985"}
	}}`)
	assert.NoError(t, ValidateJSONAgainstSchema(js, good))
}

func TestBuildFieldsJSONSchemaRejectsMalformedOutput(t *testing.T) {
	cs := schema.DefaultRegistry().ForCategory(constants.Passport)
	js := BuildFieldsJSONSchema(cs)

	cases := map[string]string{
		"unknown field":        `{"fields":{"shoe_size":{"value":"44","confidence":50}}}`,
		"missing confidence":   `{"fields":{"full_name":{"value":"JOHN SMITH"}}}`,
		"empty value":          `{"fields":{"full_name":{"value":"","confidence":80}}}`,
		"confidence too large": `{"fields":{"full_name":{"value":"JOHN SMITH","confidence":142}}}`,
		"missing fields key":   `{"full_name":{"value":"JOHN SMITH","confidence":80}}`,
	}
	for name, payload := range cases {
		err := ValidateJSONAgainstSchema(js, []byte(payload))
		require.Error(t, err, name)
	}
}

func TestValidateJSONAgainstSchemaBadJSON(t *testing.T) {
	js := BuildFieldsJSONSchema(schema.DefaultRegistry().ForCategory(constants.Generic))
	assert.Error(t, ValidateJSONAgainstSchema(js, []byte("not json")))
}

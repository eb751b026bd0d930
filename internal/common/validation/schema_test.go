package validation

import (
	"testing"

	"trialist-agent/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var searchSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"query":    map[string]interface{}{"type": "string", "minLength": 1},
		"detailed": map[string]interface{}{"type": "boolean"},
	},
	"required":             []interface{}{"query"},
	"additionalProperties": false,
}

func TestSchemaValidator_Validate(t *testing.T) {
	v := NewSchemaValidator()
	require.NoError(t, v.Register("search", searchSchema))
	assert.True(t, v.Has("search"))

	tests := []struct {
		name      string
		document  interface{}
		valid     bool
		wantField string
		wantCode  string
	}{
		{"valid", map[string]interface{}{"query": "pricing"}, true, "", ""},
		{"missing required", map[string]interface{}{"detailed": true}, false, "query", "REQUIRED"},
		{"wrong type", map[string]interface{}{"query": 42}, false, "query", "INVALID_TYPE"},
		{"extra field", map[string]interface{}{"query": "x", "limit": 3}, false, "(root)", "ADDITIONAL_PROPERTY_NOT_ALLOWED"},
		{"struct document", struct {
			Query string `json:"query"`
		}{Query: "setup"}, true, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := v.Validate("search", tt.document)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid)
			if tt.valid {
				assert.NoError(t, res.Err())
				return
			}
			require.NotEmpty(t, res.Errors)
			assert.Equal(t, tt.wantField, res.Errors[0].Field)
			assert.Equal(t, tt.wantCode, res.Errors[0].Code)
			assert.True(t, errors.HasCode(res.Err(), errors.ErrCodeValidationFailed))
		})
	}
}

func TestSchemaValidator_Unknown(t *testing.T) {
	_, err := NewSchemaValidator().Validate("missing", map[string]interface{}{})
	assert.Error(t, err)
}

func TestSchemaValidator_RegisterRejectsBadSchema(t *testing.T) {
	err := NewSchemaValidator().Register("bad", map[string]interface{}{"type": 12})
	assert.Error(t, err)
}

func TestValidateDocument(t *testing.T) {
	res, err := ValidateDocument(searchSchema, map[string]interface{}{"query": ""})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "STRING_GTE", res.Errors[0].Code)
}

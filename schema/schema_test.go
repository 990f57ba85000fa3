package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igoforth/ws-rpc/schema"
)

// requireObject accepts only map-shaped values with a string "id" field.
func requireObject(v any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, schema.Issuef("", "expected object, got %T", v)
	}
	if _, ok := m["id"].(string); !ok {
		return nil, schema.Issuef("id", "expected string")
	}
	return m, nil
}

func TestMethodLookup(t *testing.T) {
	s := &schema.Schema{
		Methods: map[string]schema.Method{
			"getUser": {Input: schema.Func(requireObject)},
		},
	}
	_, ok := s.Method("getUser")
	assert.True(t, ok)
	_, ok = s.Method("noSuch")
	assert.False(t, ok)

	var nilSchema *schema.Schema
	_, ok = nilSchema.Method("getUser")
	assert.False(t, ok, "nil schema declares nothing")
}

func TestValidateInput(t *testing.T) {
	s := &schema.Schema{
		Methods: map[string]schema.Method{
			"getUser": {Input: schema.Func(requireObject)},
		},
	}
	got, err := s.ValidateInput("getUser", map[string]any{"id": "123"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "123"}, got)

	_, err = s.ValidateInput("getUser", map[string]any{"id": 123})
	require.Error(t, err)
	var issues schema.Issues
	require.ErrorAs(t, err, &issues)
	assert.Equal(t, "id", issues[0].Path)

	_, err = s.ValidateInput("noSuch", nil)
	assert.Error(t, err, "undeclared method fails validation")
}

func TestNilValidatorsAcceptAnything(t *testing.T) {
	s := &schema.Schema{
		Methods: map[string]schema.Method{"ping": {}},
		Events:  map[string]schema.Validator{"tick": nil},
	}
	got, err := s.ValidateInput("ping", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	got, err = s.ValidateOutput("ping", "pong")
	require.NoError(t, err)
	assert.Equal(t, "pong", got)

	v, ok := s.Event("tick")
	require.True(t, ok)
	got, err = v.Validate("anything")
	require.NoError(t, err)
	assert.Equal(t, "anything", got)
}

func TestIssuesError(t *testing.T) {
	err := schema.Issues{
		{Path: "name", Message: "required"},
		{Message: "too large"},
	}
	assert.Equal(t, "validation failed: name: required; too large", err.Error())
	assert.Equal(t, "validation failed", schema.Issues{}.Error())
}

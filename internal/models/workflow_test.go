package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionUnmarshalCSVList(t *testing.T) {
	var c Condition
	require.NoError(t, json.Unmarshal([]byte(`{"field":"source","operator":"IN","value":"web, referral ,email"}`), &c))

	assert.Equal(t, "source", c.Field)
	assert.Equal(t, OpIn, c.Operator)
	assert.True(t, c.Value.IsList)
	assert.Equal(t, []string{"web", "referral", "email"}, c.Value.Members())
}

func TestConditionUnmarshalStringArray(t *testing.T) {
	var c Condition
	require.NoError(t, json.Unmarshal([]byte(`{"field":"stage","operator":"IN","value":["applied","enrolled"]}`), &c))

	assert.True(t, c.Value.IsList)
	assert.Equal(t, []string{"applied", "enrolled"}, c.Value.Members())
}

func TestConditionUnmarshalNumericArray(t *testing.T) {
	var c Condition
	require.NoError(t, json.Unmarshal([]byte(`{"field":"branch_id","operator":"IN","value":[1,2,15]}`), &c))

	assert.True(t, c.Value.IsList)
	assert.Equal(t, []string{"1", "2", "15"}, c.Value.Members())
}

func TestConditionUnmarshalScalar(t *testing.T) {
	var c Condition
	require.NoError(t, json.Unmarshal([]byte(`{"field":"status","operator":"=","value":"active"}`), &c))

	assert.False(t, c.Value.IsList)
	assert.Equal(t, "active", c.Value.Scalar)
	assert.Equal(t, []string{"active"}, c.Value.Members())
}

func TestConditionUnmarshalNumericScalar(t *testing.T) {
	var c Condition
	require.NoError(t, json.Unmarshal([]byte(`{"field":"score","operator":">","value":70}`), &c))

	assert.False(t, c.Value.IsList)
	assert.Equal(t, "70", c.Value.Scalar)
}

func TestConditionRoundTrip(t *testing.T) {
	original := Condition{Field: "source", Operator: OpIn, Value: ListValue([]string{"web", "email"})}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Condition
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}

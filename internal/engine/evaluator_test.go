package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smartdevs17/notification-engine/internal/models"
)

func TestEvaluateEmptyConditions(t *testing.T) {
	assert.True(t, Evaluate(nil, map[string]interface{}{"status": "active"}))
	assert.True(t, Evaluate([]models.Condition{}, nil))
}

func TestEvaluateEquals(t *testing.T) {
	conditions := []models.Condition{
		{Field: "status", Operator: models.OpEquals, Value: models.ScalarValue("qualified")},
	}

	assert.True(t, Evaluate(conditions, map[string]interface{}{"status": "qualified"}))
	assert.False(t, Evaluate(conditions, map[string]interface{}{"status": "new"}))
	assert.False(t, Evaluate(conditions, map[string]interface{}{}), "missing field never equals")
}

func TestEvaluateEqualsNumeric(t *testing.T) {
	// JSON decoding hands numbers over as float64; integral values must
	// still compare equal to their string form
	conditions := []models.Condition{
		{Field: "stage_id", Operator: models.OpEquals, Value: models.ScalarValue("3")},
	}

	assert.True(t, Evaluate(conditions, map[string]interface{}{"stage_id": float64(3)}))
	assert.False(t, Evaluate(conditions, map[string]interface{}{"stage_id": float64(4)}))
}

func TestEvaluateNotEquals(t *testing.T) {
	conditions := []models.Condition{
		{Field: "status", Operator: models.OpNotEquals, Value: models.ScalarValue("closed")},
	}

	assert.True(t, Evaluate(conditions, map[string]interface{}{"status": "open"}))
	assert.False(t, Evaluate(conditions, map[string]interface{}{"status": "closed"}))
	assert.True(t, Evaluate(conditions, map[string]interface{}{}), "missing field is not equal")
}

func TestEvaluateOrdering(t *testing.T) {
	greater := []models.Condition{
		{Field: "amount", Operator: models.OpGreater, Value: models.ScalarValue("100")},
	}
	less := []models.Condition{
		{Field: "amount", Operator: models.OpLess, Value: models.ScalarValue("100")},
	}

	assert.True(t, Evaluate(greater, map[string]interface{}{"amount": float64(150)}))
	assert.False(t, Evaluate(greater, map[string]interface{}{"amount": float64(100)}))
	assert.True(t, Evaluate(less, map[string]interface{}{"amount": float64(99.5)}))
	assert.False(t, Evaluate(less, map[string]interface{}{}))

	// Numeric comparison, not lexical: "20" < "100" numerically
	assert.True(t, Evaluate(less, map[string]interface{}{"amount": float64(20)}))
}

func TestEvaluateIn(t *testing.T) {
	conditions := []models.Condition{
		{Field: "country", Operator: models.OpIn, Value: models.ListValue([]string{"AU", "NZ", "UK"})},
	}

	assert.True(t, Evaluate(conditions, map[string]interface{}{"country": "NZ"}))
	assert.False(t, Evaluate(conditions, map[string]interface{}{"country": "US"}))
	assert.False(t, Evaluate(conditions, map[string]interface{}{}))
}

func TestEvaluateInScalarValue(t *testing.T) {
	// A scalar value behaves as a one-element membership list
	conditions := []models.Condition{
		{Field: "type", Operator: models.OpIn, Value: models.ScalarValue("student")},
	}

	assert.True(t, Evaluate(conditions, map[string]interface{}{"type": "student"}))
	assert.False(t, Evaluate(conditions, map[string]interface{}{"type": "agent"}))
}

func TestEvaluateContains(t *testing.T) {
	conditions := []models.Condition{
		{Field: "notes", Operator: models.OpContains, Value: models.ScalarValue("urgent")},
	}

	assert.True(t, Evaluate(conditions, map[string]interface{}{"notes": "this is urgent please"}))
	assert.False(t, Evaluate(conditions, map[string]interface{}{"notes": "routine follow up"}))
	assert.False(t, Evaluate(conditions, map[string]interface{}{}))
}

func TestEvaluateUnknownOperatorFailsMatch(t *testing.T) {
	conditions := []models.Condition{
		{Field: "status", Operator: "~=", Value: models.ScalarValue("x")},
	}

	assert.False(t, Evaluate(conditions, map[string]interface{}{"status": "x"}))
}

func TestEvaluateConditionsAreANDed(t *testing.T) {
	conditions := []models.Condition{
		{Field: "status", Operator: models.OpEquals, Value: models.ScalarValue("active")},
		{Field: "country", Operator: models.OpEquals, Value: models.ScalarValue("AU")},
	}

	assert.True(t, Evaluate(conditions, map[string]interface{}{"status": "active", "country": "AU"}))
	assert.False(t, Evaluate(conditions, map[string]interface{}{"status": "active", "country": "NZ"}))
}

func TestCoerceString(t *testing.T) {
	assert.Equal(t, "3", coerceString(float64(3)))
	assert.Equal(t, "3.5", coerceString(float64(3.5)))
	assert.Equal(t, "true", coerceString(true))
	assert.Equal(t, "", coerceString(nil))
	assert.Equal(t, "hello", coerceString("hello"))
}

package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smartdevs17/notification-engine/internal/models"
	"github.com/smartdevs17/notification-engine/pkg/utils"
)

// Evaluate reports whether payload satisfies every condition. An empty
// condition list matches vacuously. Conditions are ANDed and the first
// failure short-circuits. An unknown operator fails the whole match rather
// than letting an unvalidated workflow fire.
func Evaluate(conditions []models.Condition, payload map[string]interface{}) bool {
	for _, cond := range conditions {
		if !evaluateOne(cond, payload) {
			return false
		}
	}
	return true
}

func evaluateOne(cond models.Condition, payload map[string]interface{}) bool {
	actual, present := payload[cond.Field]

	switch cond.Operator {
	case models.OpEquals:
		return present && coerceString(actual) == cond.Value.Scalar
	case models.OpNotEquals:
		if !present {
			return true
		}
		return coerceString(actual) != cond.Value.Scalar
	case models.OpGreater:
		return present && compare(actual, cond.Value.Scalar) > 0
	case models.OpLess:
		return present && compare(actual, cond.Value.Scalar) < 0
	case models.OpIn:
		if !present {
			return false
		}
		needle := coerceString(actual)
		for _, member := range cond.Value.Members() {
			if needle == member {
				return true
			}
		}
		return false
	case models.OpContains:
		return present && strings.Contains(coerceString(actual), cond.Value.Scalar)
	default:
		utils.GetLogger().WithField("operator", cond.Operator).
			Warn("Unknown condition operator, failing match")
		return false
	}
}

// compare orders a payload value against a condition value, numerically when
// both sides parse as numbers and lexically otherwise
func compare(actual interface{}, expected string) int {
	actualStr := coerceString(actual)

	actualNum, errA := strconv.ParseFloat(actualStr, 64)
	expectedNum, errB := strconv.ParseFloat(expected, 64)
	if errA == nil && errB == nil {
		switch {
		case actualNum < expectedNum:
			return -1
		case actualNum > expectedNum:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(actualStr, expected)
}

// coerceString renders a payload value for comparison. Floats that carry an
// integral value print without the trailing ".0" JSON decoding gives them.
func coerceString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

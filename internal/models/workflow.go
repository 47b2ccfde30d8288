package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Schedule types
const (
	ScheduleImmediate    = "immediate"
	ScheduleDelay        = "delay"
	ScheduleDistinctTime = "distinct_time"
)

// Condition operators
const (
	OpEquals    = "="
	OpNotEquals = "!="
	OpGreater   = ">"
	OpLess      = "<"
	OpIn        = "IN"
	OpContains  = "CONTAINS"
)

// ConditionValue is a tagged union: either a single scalar or a list of
// strings. The variant is decided when the condition is parsed, not when it
// is evaluated.
type ConditionValue struct {
	List   []string `json:"list,omitempty"`
	Scalar string   `json:"scalar,omitempty"`
	IsList bool     `json:"is_list"`
}

// ScalarValue constructs a scalar condition value
func ScalarValue(s string) ConditionValue {
	return ConditionValue{Scalar: s}
}

// ListValue constructs a list condition value
func ListValue(items []string) ConditionValue {
	return ConditionValue{List: items, IsList: true}
}

// Members returns the value as a membership list: the list variant as-is,
// the scalar variant as a single-element list
func (v ConditionValue) Members() []string {
	if v.IsList {
		return v.List
	}
	return []string{v.Scalar}
}

// Condition is one boolean predicate over the event payload. A workflow's
// conditions are ANDed.
type Condition struct {
	Field    string         `json:"field"`
	Operator string         `json:"operator"`
	Value    ConditionValue `json:"value"`
}

// conditionJSON is the external wire form: value may be a JSON array or a
// plain string. An IN operator with a string value treats it as a
// comma-separated list, split and trimmed here at parse time.
type conditionJSON struct {
	Field    string          `json:"field"`
	Operator string          `json:"operator"`
	Value    json.RawMessage `json:"value"`
}

// UnmarshalJSON parses a condition, resolving the value union
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw conditionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Field = raw.Field
	c.Operator = raw.Operator

	var elems []interface{}
	if err := json.Unmarshal(raw.Value, &elems); err == nil {
		items := make([]string, 0, len(elems))
		for _, e := range elems {
			items = append(items, scalarText(e))
		}
		c.Value = ListValue(items)
		return nil
	}

	var scalar string
	if err := json.Unmarshal(raw.Value, &scalar); err != nil {
		// Numbers and booleans come through as their literal text
		scalar = strings.Trim(string(raw.Value), `"`)
	}

	if raw.Operator == OpIn {
		parts := strings.Split(scalar, ",")
		items := make([]string, 0, len(parts))
		for _, p := range parts {
			items = append(items, strings.TrimSpace(p))
		}
		c.Value = ListValue(items)
		return nil
	}

	c.Value = ScalarValue(scalar)
	return nil
}

// scalarText renders one JSON array element as the string the evaluator
// compares against. Whole numbers drop the decimal point so a JSON 3
// matches a payload "3".
func scalarText(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		data, _ := json.Marshal(v)
		return string(data)
	}
}

// MarshalJSON writes the external wire form back out
func (c Condition) MarshalJSON() ([]byte, error) {
	var value interface{}
	if c.Value.IsList {
		value = c.Value.List
	} else {
		value = c.Value.Scalar
	}
	return json.Marshal(map[string]interface{}{
		"field":    c.Field,
		"operator": c.Operator,
		"value":    value,
	})
}

// Workflow binds one trigger event to one template/channel/schedule/condition
// set. Multiple workflows may match the same event; each is evaluated
// independently in descending priority order.
type Workflow struct {
	ID           int64       `json:"id" db:"id"`
	TenantID     int64       `json:"tenant_id" db:"tenant_id"`
	Name         string      `json:"name" db:"name"`
	TriggerEvent string      `json:"trigger_event" db:"trigger_event"`
	TemplateID   int64       `json:"template_id" db:"template_id"`
	GatewayID    *int64      `json:"gateway_id,omitempty" db:"gateway_id"`
	Channel      string      `json:"channel" db:"channel"`
	ScheduleType string      `json:"schedule_type" db:"schedule_type"`
	DelayMinutes int         `json:"delay_minutes" db:"delay_minutes"`
	// ScheduleReference names the payload field holding the reference
	// date for distinct_time scheduling
	ScheduleReference string      `json:"schedule_reference" db:"schedule_reference"`
	ScheduleOffset    int         `json:"schedule_offset" db:"schedule_offset"`
	ScheduleUnit      string      `json:"schedule_unit" db:"schedule_unit"` // minutes, hours, days
	Conditions        []Condition `json:"conditions" db:"conditions"`
	IsActive          bool        `json:"is_active" db:"is_active"`
	Priority          int         `json:"priority" db:"priority"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at" db:"updated_at"`
}

package expression

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
)

// SwitchCondition is one rule condition in a switch node: a dotted field
// path, a case-insensitive operator tag, and a comparison value.
type SwitchCondition struct {
	Field    string
	Operator string
	Value    any
}

// EvalSwitchCondition evaluates one switch-rule condition against data.
func EvalSwitchCondition(c SwitchCondition, data map[string]any) bool {
	fieldVal, present := dynvalue.ByPath(map[string]any(data), c.Field)

	switch strings.ToLower(c.Operator) {
	case "equals":
		return present && fmt.Sprintf("%v", fieldVal) == fmt.Sprintf("%v", c.Value)
	case "notequals":
		return !present || fmt.Sprintf("%v", fieldVal) != fmt.Sprintf("%v", c.Value)
	case "contains":
		return present && strings.Contains(toStr(fieldVal), toStr(c.Value))
	case "notcontains":
		return !present || !strings.Contains(toStr(fieldVal), toStr(c.Value))
	case "startswith":
		return present && strings.HasPrefix(toStr(fieldVal), toStr(c.Value))
	case "endswith":
		return present && strings.HasSuffix(toStr(fieldVal), toStr(c.Value))
	case "matches":
		if !present {
			return false
		}
		re, err := regexp.Compile(toStr(c.Value))
		if err != nil {
			return false
		}
		return re.MatchString(toStr(fieldVal))
	case "gt":
		return present && dynvalue.ToNumber(fieldVal) > dynvalue.ToNumber(c.Value)
	case "gte":
		return present && dynvalue.ToNumber(fieldVal) >= dynvalue.ToNumber(c.Value)
	case "lt":
		return present && dynvalue.ToNumber(fieldVal) < dynvalue.ToNumber(c.Value)
	case "lte":
		return present && dynvalue.ToNumber(fieldVal) <= dynvalue.ToNumber(c.Value)
	case "isempty":
		return !present || dynvalue.IsEmpty(fieldVal)
	case "isnotempty":
		return present && !dynvalue.IsEmpty(fieldVal)
	case "isnull":
		return !present || fieldVal == nil
	case "isnotnull":
		return present && fieldVal != nil
	case "in":
		if !present {
			return false
		}
		for _, item := range dynvalue.ToSlice(c.Value) {
			if fmt.Sprintf("%v", item) == fmt.Sprintf("%v", fieldVal) {
				return true
			}
		}
		return false
	case "notin":
		if !present {
			return true
		}
		for _, item := range dynvalue.ToSlice(c.Value) {
			if fmt.Sprintf("%v", item) == fmt.Sprintf("%v", fieldVal) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// EvalSwitchRule combines a rule's conditions per its combineWith policy
// ("and" | "or"), short-circuiting as soon as the outcome is determined.
func EvalSwitchRule(conditions []SwitchCondition, combineWith string, data map[string]any) bool {
	if len(conditions) == 0 {
		return false
	}
	if strings.EqualFold(combineWith, "or") {
		for _, c := range conditions {
			if EvalSwitchCondition(c, data) {
				return true
			}
		}
		return false
	}
	for _, c := range conditions {
		if !EvalSwitchCondition(c, data) {
			return false
		}
	}
	return true
}

func toStr(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

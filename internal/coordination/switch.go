package coordination

import (
	"context"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/expression"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

// SwitchRule is one rule of a switch node's `rules` parameter.
type SwitchRule struct {
	Name        string
	Conditions  []expression.SwitchCondition
	CombineWith string
}

// SwitchHandler routes to the first matching rule's branch, or to
// fallbackOutput when none match, per §4.5.2.
type SwitchHandler struct{}

func (SwitchHandler) NodeType() string { return "switch" }

func (SwitchHandler) Execute(ctx context.Context, node model.Node, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	rules := parseSwitchRules(node.Parameters)
	fallback := dynvalue.GetString(node.Parameters, "fallbackOutput", "fallback")

	out := dynvalue.Copy(input)
	for i, rule := range rules {
		if expression.EvalSwitchRule(rule.Conditions, rule.CombineWith, input) {
			out["_branch"] = rule.Name
			out["_matchedRuleIndex"] = i
			out["_matched"] = true
			return out, nil
		}
	}

	out["_branch"] = fallback
	out["_matchedRuleIndex"] = -1
	out["_matched"] = false
	return out, nil
}

func parseSwitchRules(parameters map[string]any) []SwitchRule {
	raw := dynvalue.GetSlice(parameters, "rules")
	rules := make([]SwitchRule, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rule := SwitchRule{
			Name:        dynvalue.GetString(m, "name", ""),
			CombineWith: dynvalue.GetString(m, "combineWith", "and"),
		}
		for _, rawCond := range dynvalue.GetSlice(m, "conditions") {
			cm, ok := rawCond.(map[string]any)
			if !ok {
				continue
			}
			rule.Conditions = append(rule.Conditions, expression.SwitchCondition{
				Field:    dynvalue.GetString(cm, "field", ""),
				Operator: dynvalue.GetString(cm, "operator", "equals"),
				Value:    cm["value"],
			})
		}
		rules = append(rules, rule)
	}
	return rules
}

var _ handler.Handler = SwitchHandler{}

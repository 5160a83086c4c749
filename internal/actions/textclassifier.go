package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/expression"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

// TextClassifierHandler assigns input text to one of the node's declared
// categories by prompting an LLM and parsing its single-word answer. It
// reuses LLMChatHandler's provider dispatch rather than duplicating the
// anthropic/openai client setup, since classification is chat completion
// with a constrained prompt, not a distinct API surface.
type TextClassifierHandler struct {
	llm *LLMChatHandler
}

func NewTextClassifierHandler() *TextClassifierHandler {
	return &TextClassifierHandler{llm: NewLLMChatHandler()}
}

func (*TextClassifierHandler) NodeType() string { return "textClassifier" }

func (h *TextClassifierHandler) Execute(ctx context.Context, node model.Node, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	exprCtx := expression.NewContext(input, ec.Workflow().Settings, nil, ec.Credential)

	text := expression.Interpolate(dynvalue.GetString(node.Parameters, "text", ""), exprCtx)
	if text == "" {
		return nil, model.NewInvalidWorkflowError("textClassifier node missing text parameter")
	}

	var categories []string
	for _, c := range dynvalue.GetSlice(node.Parameters, "categories") {
		if s, ok := c.(string); ok {
			categories = append(categories, s)
		}
	}
	if len(categories) == 0 {
		return nil, model.NewInvalidWorkflowError("textClassifier node requires at least one category")
	}

	provider := dynvalue.GetString(node.Parameters, "provider", "openai")
	modelName := dynvalue.GetString(node.Parameters, "model", "")
	apiKey, _ := ec.Credential(node.CredentialRef)

	prompt := fmt.Sprintf(
		"Classify the following text into exactly one of these categories: %s.\nRespond with only the category name, nothing else.\n\nText:\n%s",
		strings.Join(categories, ", "), text,
	)
	messages := []chatMessage{{Role: "user", Content: prompt}}

	var (
		reply string
		err   error
	)
	switch provider {
	case "anthropic":
		reply, err = h.llm.chatAnthropic(ctx, apiKey, modelName, messages)
	default:
		reply, err = h.llm.chatOpenAI(ctx, apiKey, modelName, messages)
	}
	if err != nil {
		return nil, model.NewHandlerFailureError("textClassifier node: classification call failed", err)
	}

	category := matchCategory(reply, categories)
	return map[string]any{
		"category":   category,
		"raw":        strings.TrimSpace(reply),
		"categories": categories,
	}, nil
}

// matchCategory finds the declared category the model's reply most
// plausibly named: an exact (trimmed, case-insensitive) match, then a
// substring containment fallback for replies with extra wording despite
// the prompt's instruction not to add any.
func matchCategory(reply string, categories []string) string {
	clean := strings.ToLower(strings.TrimSpace(reply))
	for _, c := range categories {
		if strings.ToLower(c) == clean {
			return c
		}
	}
	for _, c := range categories {
		if strings.Contains(clean, strings.ToLower(c)) {
			return c
		}
	}
	return categories[0]
}

var _ handler.Handler = (*TextClassifierHandler)(nil)

package actions

import (
	"context"
	"encoding/json"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/go-resty/resty/v2"
	openaisdk "github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/expression"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
	"github.com/flowbase/workflow-engine/internal/settings"
)

// chatMessage is the provider-neutral shape llmChat converts its
// "messages" parameter into before dispatching to a provider client.
type chatMessage struct {
	Role    string
	Content string
}

// LLMChatHandler dispatches a chat-completion call to one of four
// providers selected by the node's "provider" parameter, grounded on
// dshills-langgraph-go's anthropic/openai ChatModel adapters for the two
// SDK-backed providers; ollama and azure have no SDK in the retrieval
// pack, so they're reached the same way compozy reaches arbitrary HTTP
// APIs, through a resty client hitting each provider's documented
// chat-completions-shaped endpoint (§5's domain-stack note).
type LLMChatHandler struct {
	httpClient *resty.Client
}

func NewLLMChatHandler() *LLMChatHandler {
	return &LLMChatHandler{httpClient: resty.New()}
}

func (*LLMChatHandler) NodeType() string { return "llmChat" }

func (h *LLMChatHandler) Execute(ctx context.Context, node model.Node, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	exprCtx := expression.NewContext(input, ec.Workflow().Settings, nil, ec.Credential)

	provider := dynvalue.GetString(node.Parameters, "provider", "openai")
	modelName := dynvalue.GetString(node.Parameters, "model", providerSetting(ec, settings.KeyAIDefaultModel, provider, ""))
	apiKey, _ := ec.Credential(node.CredentialRef)
	if apiKey == "" {
		apiKey = dynvalue.GetString(node.Parameters, "apiKey", providerSetting(ec, settings.KeyAIAPIKey, provider, ""))
	}

	messages := chatMessagesFrom(node.Parameters, exprCtx)
	if len(messages) == 0 {
		return nil, model.NewInvalidWorkflowError("llmChat node requires at least one message")
	}

	var (
		text string
		err  error
	)
	switch provider {
	case "anthropic":
		text, err = h.chatAnthropic(ctx, apiKey, modelName, messages)
	case "openai":
		text, err = h.chatOpenAI(ctx, apiKey, modelName, messages)
	case "ollama":
		baseURL := dynvalue.GetString(node.Parameters, "baseUrl", providerSetting(ec, settings.KeyAIBaseURL, provider, "http://localhost:11434"))
		text, err = h.chatRESTCompatible(ctx, baseURL, apiKey, modelName, messages, false)
	case "azure":
		baseURL := dynvalue.GetString(node.Parameters, "baseUrl", providerSetting(ec, settings.KeyAIBaseURL, provider, ""))
		text, err = h.chatRESTCompatible(ctx, baseURL, apiKey, modelName, messages, true)
	default:
		return nil, model.NewInvalidWorkflowError(fmt.Sprintf("llmChat node: unknown provider %q", provider))
	}
	if err != nil {
		return nil, model.NewHandlerFailureError(fmt.Sprintf("llmChat node: %s call failed", provider), err)
	}

	return map[string]any{"text": text, "provider": provider, "model": modelName}, nil
}

// providerSetting looks up a per-provider settings key (one of the
// ai.<provider>.* keys in §6's known-settings table, keyFormat being a
// "ai.%s.*" printf template) via the execution context's settings
// accessor, falling back to def when unset or when ec is nil.
func providerSetting(ec handler.ExecutionContext, keyFormat, provider, def string) string {
	if ec == nil {
		return def
	}
	return ec.Setting(fmt.Sprintf(keyFormat, provider), def).(string)
}

func chatMessagesFrom(params map[string]any, exprCtx expression.Context) []chatMessage {
	var out []chatMessage
	if systemPrompt := dynvalue.GetString(params, "systemPrompt", ""); systemPrompt != "" {
		out = append(out, chatMessage{Role: "system", Content: expression.Interpolate(systemPrompt, exprCtx)})
	}
	for _, raw := range dynvalue.GetSlice(params, "messages") {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, chatMessage{
			Role:    dynvalue.GetString(m, "role", "user"),
			Content: expression.Interpolate(dynvalue.GetString(m, "content", ""), exprCtx),
		})
	}
	if prompt := dynvalue.GetString(params, "prompt", ""); prompt != "" {
		out = append(out, chatMessage{Role: "user", Content: expression.Interpolate(prompt, exprCtx)})
	}
	return out
}

func (*LLMChatHandler) chatAnthropic(ctx context.Context, apiKey, modelName string, messages []chatMessage) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("anthropic API key is required")
	}
	if modelName == "" {
		modelName = "claude-sonnet-4-5-20250929"
	}
	client := anthropicsdk.NewClient(anthropicoption.WithAPIKey(apiKey))

	var system []anthropicsdk.TextBlockParam
	var anthropicMessages []anthropicsdk.MessageParam
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, anthropicsdk.TextBlockParam{Text: m.Content})
		case "assistant":
			anthropicMessages = append(anthropicMessages, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(m.Content)))
		default:
			anthropicMessages = append(anthropicMessages, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Content)))
		}
	}

	resp, err := client.Messages.New(ctx, anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(modelName),
		Messages:  anthropicMessages,
		System:    system,
		MaxTokens: 4096,
	})
	if err != nil {
		return "", err
	}

	var text string
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			text += b.Text
		}
	}
	return text, nil
}

func (*LLMChatHandler) chatOpenAI(ctx context.Context, apiKey, modelName string, messages []chatMessage) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("openai API key is required")
	}
	if modelName == "" {
		modelName = "gpt-4o"
	}
	client := openaisdk.NewClient(openaioption.WithAPIKey(apiKey))

	var openaiMessages []openaisdk.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case "system":
			openaiMessages = append(openaiMessages, openaisdk.SystemMessage(m.Content))
		case "assistant":
			openaiMessages = append(openaiMessages, openaisdk.AssistantMessage(m.Content))
		default:
			openaiMessages = append(openaiMessages, openaisdk.UserMessage(m.Content))
		}
	}

	resp, err := client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(modelName),
		Messages: openaiMessages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// chatRESTCompatible covers providers with no SDK in the retrieval pack:
// ollama's own /api/chat endpoint, and Azure OpenAI's chat-completions
// endpoint (OpenAI-shaped body, api-key header instead of bearer auth).
func (h *LLMChatHandler) chatRESTCompatible(ctx context.Context, baseURL, apiKey, modelName string, messages []chatMessage, azureShaped bool) (string, error) {
	if baseURL == "" {
		return "", fmt.Errorf("baseUrl is required for this provider")
	}

	type wireMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	wireMessages := make([]wireMessage, len(messages))
	for i, m := range messages {
		wireMessages[i] = wireMessage{Role: m.Role, Content: m.Content}
	}

	req := h.httpClient.R().SetContext(ctx)
	var endpoint string
	var body map[string]any

	if azureShaped {
		endpoint = baseURL
		req.SetHeader("api-key", apiKey)
		body = map[string]any{"messages": wireMessages}
	} else {
		endpoint = baseURL + "/api/chat"
		body = map[string]any{"model": modelName, "messages": wireMessages, "stream": false}
	}

	resp, err := req.SetBody(body).Post(endpoint)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", model.NewExternalFailureError(resp.StatusCode(), truncate(resp.String(), 500))
	}

	var parsed struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) > 0 {
		return parsed.Choices[0].Message.Content, nil
	}
	return parsed.Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ handler.Handler = (*LLMChatHandler)(nil)

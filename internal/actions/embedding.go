package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
	openaisdk "github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/expression"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

// EmbeddingHandler turns input text into a vector, with the same
// provider-selection shape as llmChat: openai through the official SDK,
// ollama and cohere (no SDK in the retrieval pack) through resty against
// their documented embeddings endpoints.
type EmbeddingHandler struct {
	httpClient *resty.Client
}

func NewEmbeddingHandler() *EmbeddingHandler {
	return &EmbeddingHandler{httpClient: resty.New()}
}

func (*EmbeddingHandler) NodeType() string { return "embedding" }

func (h *EmbeddingHandler) Execute(ctx context.Context, node model.Node, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	exprCtx := expression.NewContext(input, ec.Workflow().Settings, nil, ec.Credential)
	text := expression.Interpolate(dynvalue.GetString(node.Parameters, "text", ""), exprCtx)
	if text == "" {
		return nil, model.NewInvalidWorkflowError("embedding node missing text parameter")
	}

	provider := dynvalue.GetString(node.Parameters, "provider", "openai")
	modelName := dynvalue.GetString(node.Parameters, "model", "")
	apiKey, _ := ec.Credential(node.CredentialRef)

	vector, err := h.embed(ctx, provider, modelName, apiKey, node, text)
	if err != nil {
		return nil, model.NewHandlerFailureError(fmt.Sprintf("embedding node: %s call failed", provider), err)
	}

	return map[string]any{
		"vector":   vector,
		"dims":     len(vector),
		"provider": provider,
		"model":    modelName,
	}, nil
}

// embed is shared by the rag handler so a retrieval pass and the
// standalone embedding node compute vectors identically.
func (h *EmbeddingHandler) embed(ctx context.Context, provider, modelName, apiKey string, node model.Node, text string) ([]float64, error) {
	switch provider {
	case "ollama":
		return h.embedREST(ctx, dynvalue.GetString(node.Parameters, "baseUrl", "http://localhost:11434")+"/api/embeddings", apiKey, modelName, text, false)
	case "cohere":
		return h.embedREST(ctx, "https://api.cohere.ai/v1/embed", apiKey, modelName, text, true)
	default: // "openai"
		return h.embedOpenAI(ctx, apiKey, modelName, text)
	}
}

func (*EmbeddingHandler) embedOpenAI(ctx context.Context, apiKey, modelName, text string) ([]float64, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if modelName == "" {
		modelName = "text-embedding-3-small"
	}
	client := openaisdk.NewClient(openaioption.WithAPIKey(apiKey))

	resp, err := client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Model: openaisdk.EmbeddingModel(modelName),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai returned no embedding data")
	}
	return resp.Data[0].Embedding, nil
}

// embedREST covers ollama's /api/embeddings (bare JSON body, "embedding"
// key) and cohere's /v1/embed (bearer auth, "embeddings" array key).
func (h *EmbeddingHandler) embedREST(ctx context.Context, endpoint, apiKey, modelName, text string, cohereShaped bool) ([]float64, error) {
	req := h.httpClient.R().SetContext(ctx)
	var body map[string]any
	if cohereShaped {
		if apiKey != "" {
			req.SetAuthToken(apiKey)
		}
		body = map[string]any{"texts": []string{text}, "model": modelName, "input_type": "search_document"}
	} else {
		body = map[string]any{"model": modelName, "prompt": text}
	}

	resp, err := req.SetBody(body).Post(endpoint)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, model.NewExternalFailureError(resp.StatusCode(), truncate(resp.String(), 500))
	}

	var parsed struct {
		Embedding  []float64   `json:"embedding"`
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Embeddings) > 0 {
		return parsed.Embeddings[0], nil
	}
	return parsed.Embedding, nil
}

var _ handler.Handler = (*EmbeddingHandler)(nil)

package actions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/workflow-engine/internal/model"
)

// ragEmbeddingServer returns a fixed vector keyed by the "prompt" field of
// the ollama-shaped request body, so query and documents can be embedded
// distinctly without a real model behind them.
func ragEmbeddingServer(t *testing.T, vectors map[string][]float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		resp, _ := json.Marshal(map[string]any{"embedding": vectors[body.Prompt]})
		w.Write(resp)
	}))
}

func TestRAGHandlerRanksDocumentsBySimilarity(t *testing.T) {
	vectors := map[string][]float64{
		"cats":  {1, 0},
		"dogs":  {0, 1},
		"query": {1, 0},
	}
	srv := ragEmbeddingServer(t, vectors)
	defer srv.Close()

	h := NewRAGHandler()
	node := model.Node{Parameters: map[string]any{
		"provider": "ollama",
		"baseUrl":  srv.URL,
		"query":    "query",
		"documents": []any{
			map[string]any{"id": "dogs-doc", "text": "dogs"},
			map[string]any{"id": "cats-doc", "text": "cats"},
		},
	}}

	out, err := h.Execute(context.Background(), node, map[string]any{}, newFakeExecutionContext())
	require.NoError(t, err)
	matches := out["matches"].([]map[string]any)
	require.Len(t, matches, 2)
	assert.Equal(t, "cats-doc", matches[0]["id"])
	assert.Equal(t, "dogs-doc", matches[1]["id"])
}

func TestRAGHandlerRequiresDocuments(t *testing.T) {
	h := NewRAGHandler()
	node := model.Node{Parameters: map[string]any{"query": "hi"}}
	_, err := h.Execute(context.Background(), node, map[string]any{}, newFakeExecutionContext())
	assert.Error(t, err)
}

func TestRAGHandlerRequiresQuery(t *testing.T) {
	h := NewRAGHandler()
	node := model.Node{Parameters: map[string]any{
		"documents": []any{"some text"},
	}}
	_, err := h.Execute(context.Background(), node, map[string]any{}, newFakeExecutionContext())
	assert.Error(t, err)
}

package actions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/workflow-engine/internal/model"
)

func TestEmbeddingHandlerOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		w.Write([]byte(`{"embedding": [0.1, 0.2, 0.3]}`))
	}))
	defer srv.Close()

	h := NewEmbeddingHandler()
	node := model.Node{Parameters: map[string]any{
		"provider": "ollama",
		"baseUrl":  srv.URL,
		"text":     "hello",
	}}

	out, err := h.Execute(context.Background(), node, map[string]any{}, newFakeExecutionContext())
	require.NoError(t, err)
	assert.Equal(t, 3, out["dims"])
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, out["vector"])
}

func TestEmbeddingHandlerMissingText(t *testing.T) {
	h := NewEmbeddingHandler()
	node := model.Node{Parameters: map[string]any{"provider": "ollama"}}
	_, err := h.Execute(context.Background(), node, map[string]any{}, newFakeExecutionContext())
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{name: "identical vectors", a: []float64{1, 0}, b: []float64{1, 0}, want: 1},
		{name: "orthogonal vectors", a: []float64{1, 0}, b: []float64{0, 1}, want: 0},
		{name: "mismatched lengths", a: []float64{1, 2}, b: []float64{1}, want: 0},
		{name: "empty vector", a: []float64{}, b: []float64{1}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

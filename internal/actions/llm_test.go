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

func TestLLMChatHandlerOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		w.Write([]byte(`{"message": {"content": "hi there"}}`))
	}))
	defer srv.Close()

	h := NewLLMChatHandler()
	node := model.Node{Parameters: map[string]any{
		"provider": "ollama",
		"baseUrl":  srv.URL,
		"prompt":   "hello",
	}}

	out, err := h.Execute(context.Background(), node, map[string]any{}, newFakeExecutionContext())
	require.NoError(t, err)
	assert.Equal(t, "hi there", out["text"])
	assert.Equal(t, "ollama", out["provider"])
}

func TestLLMChatHandlerFallsBackToSettingsForBaseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message": {"content": "from settings"}}`))
	}))
	defer srv.Close()

	h := NewLLMChatHandler()
	node := model.Node{Parameters: map[string]any{
		"provider": "ollama",
		"prompt":   "hello",
	}}
	ec := newFakeExecutionContext()
	ec.workflow.Settings["ai.ollama.base_url"] = srv.URL

	out, err := h.Execute(context.Background(), node, map[string]any{}, ec)
	require.NoError(t, err)
	assert.Equal(t, "from settings", out["text"])
}

func TestLLMChatHandlerUnknownProvider(t *testing.T) {
	h := NewLLMChatHandler()
	node := model.Node{Parameters: map[string]any{
		"provider": "not-a-provider",
		"prompt":   "hello",
	}}
	_, err := h.Execute(context.Background(), node, map[string]any{}, newFakeExecutionContext())
	assert.Error(t, err)
}

func TestLLMChatHandlerMissingMessages(t *testing.T) {
	h := NewLLMChatHandler()
	node := model.Node{Parameters: map[string]any{"provider": "ollama"}}
	_, err := h.Execute(context.Background(), node, map[string]any{}, newFakeExecutionContext())
	assert.Error(t, err)
}

func TestChatMessagesFromBuildsSystemAndUserMessages(t *testing.T) {
	ec := newFakeExecutionContext()
	exprCtx := newFakeExprContext(map[string]any{"name": "Ada"}, ec)

	params := map[string]any{
		"systemPrompt": "You are terse.",
		"prompt":       "Hello, ${name}",
	}
	messages := chatMessagesFrom(params, exprCtx)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].Role)
	assert.Equal(t, "user", messages[1].Role)
	assert.Equal(t, "Hello, Ada", messages[1].Content)
}

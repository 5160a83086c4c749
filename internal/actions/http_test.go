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

func TestHTTPRequestHandlerJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/widgets", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	ec := newFakeExecutionContext()
	ec.credentials["token-cred"] = "secret-token"

	h := NewHTTPRequestHandler()
	node := model.Node{
		CredentialRef: "token-cred",
		Parameters: map[string]any{
			"method":         "GET",
			"url":            srv.URL + "/widgets",
			"authentication": "bearer",
		},
	}

	out, err := h.Execute(context.Background(), node, map[string]any{}, ec)
	require.NoError(t, err)
	assert.Equal(t, 200, out["statusCode"])
	assert.Equal(t, true, out["ok"])
	body := out["body"].(map[string]any)
	assert.Equal(t, true, body["ok"])
}

func TestHTTPRequestHandlerInterpolatesURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/items/42", r.URL.Path)
		w.Write([]byte("plain text"))
	}))
	defer srv.Close()

	h := NewHTTPRequestHandler()
	node := model.Node{Parameters: map[string]any{
		"method": "GET",
		"url":    srv.URL + "/items/${id}",
	}}

	out, err := h.Execute(context.Background(), node, map[string]any{"id": 42}, newFakeExecutionContext())
	require.NoError(t, err)
	assert.Equal(t, "plain text", out["body"])
}

func TestHTTPRequestHandlerMissingURL(t *testing.T) {
	h := NewHTTPRequestHandler()
	node := model.Node{Parameters: map[string]any{}}
	_, err := h.Execute(context.Background(), node, map[string]any{}, newFakeExecutionContext())
	assert.Error(t, err)
}

func TestHTTPRequestHandlerPostsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"created": true}`))
	}))
	defer srv.Close()

	h := NewHTTPRequestHandler()
	node := model.Node{Parameters: map[string]any{
		"method": "POST",
		"url":    srv.URL,
		"body":   map[string]any{"name": "${name}"},
	}}

	out, err := h.Execute(context.Background(), node, map[string]any{"name": "ada"}, newFakeExecutionContext())
	require.NoError(t, err)
	assert.Equal(t, 201, out["statusCode"])
}

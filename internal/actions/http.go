package actions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/expression"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

// HTTPRequestHandler makes one HTTP call per invocation, grounded on the
// teacher's HTTPRequestNode's config surface (method, url, headers,
// queryParams, body, bodyType, timeout, authentication, responseType),
// reimplemented on go-resty/resty/v2 per the domain-stack binding instead
// of the teacher's raw net/http client.
type HTTPRequestHandler struct {
	client *resty.Client
}

// NewHTTPRequestHandler builds a handler around a shared resty client;
// resty.Client is safe for concurrent use across node executions.
func NewHTTPRequestHandler() *HTTPRequestHandler {
	return &HTTPRequestHandler{client: resty.New()}
}

func (*HTTPRequestHandler) NodeType() string { return "httpRequest" }

func (h *HTTPRequestHandler) Execute(ctx context.Context, node model.Node, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	exprCtx := expression.NewContext(input, ec.Workflow().Settings, nil, ec.Credential)

	method := strings.ToUpper(dynvalue.GetString(node.Parameters, "method", "GET"))
	rawURL := expression.Interpolate(dynvalue.GetString(node.Parameters, "url", ""), exprCtx)
	if rawURL == "" {
		return nil, model.NewInvalidWorkflowError("httpRequest node missing url parameter")
	}
	timeout := time.Duration(dynvalue.GetInt(node.Parameters, "timeout", 30)) * time.Second
	bodyType := dynvalue.GetString(node.Parameters, "bodyType", "json")
	responseType := dynvalue.GetString(node.Parameters, "responseType", "auto")

	req := h.client.R().SetContext(ctx)

	for k, v := range dynvalue.GetMap(node.Parameters, "headers") {
		req.SetHeader(k, expression.Interpolate(fmt.Sprintf("%v", v), exprCtx))
	}
	queryParams := dynvalue.GetMap(node.Parameters, "queryParams")
	if len(queryParams) > 0 {
		q := make(map[string]string, len(queryParams))
		for k, v := range queryParams {
			q[k] = expression.Interpolate(fmt.Sprintf("%v", v), exprCtx)
		}
		req.SetQueryParams(q)
	}

	if body, ok := node.Parameters["body"]; ok && (method == "POST" || method == "PUT" || method == "PATCH") {
		body = expression.EvaluateTemplate(body, exprCtx)
		switch bodyType {
		case "form", "urlencoded":
			if m, ok := body.(map[string]any); ok {
				form := make(map[string]string, len(m))
				for k, v := range m {
					form[k] = fmt.Sprintf("%v", v)
				}
				req.SetFormData(form)
			}
		case "raw":
			req.SetBody(fmt.Sprintf("%v", body)).SetHeader("Content-Type", "text/plain")
		default: // "json"
			req.SetHeader("Content-Type", "application/json").SetBody(body)
		}
	}

	if err := applyHTTPAuth(req, node, ec); err != nil {
		return nil, model.NewHandlerFailureError("httpRequest node: authentication error", err)
	}

	h.client.SetTimeout(timeout)
	resp, err := req.Execute(method, rawURL)
	if err != nil {
		return nil, model.NewHandlerFailureError("httpRequest node: request failed", err)
	}

	respHeaders := make(map[string]string, len(resp.Header()))
	for k := range resp.Header() {
		respHeaders[k] = resp.Header().Get(k)
	}

	contentType := resp.Header().Get("Content-Type")
	effectiveType := responseType
	if effectiveType == "auto" {
		switch {
		case strings.Contains(contentType, "application/json"):
			effectiveType = "json"
		case strings.Contains(contentType, "text/"):
			effectiveType = "text"
		default:
			effectiveType = "binary"
		}
	}

	var parsedBody any
	raw := resp.Body()
	switch effectiveType {
	case "json":
		parsedBody = dynvalue.ParseJSONOrString(raw)
	case "text":
		parsedBody = string(raw)
	default:
		parsedBody = map[string]any{"size": len(raw), "mimeType": contentType}
	}

	return map[string]any{
		"statusCode":    resp.StatusCode(),
		"statusMessage": resp.Status(),
		"headers":       respHeaders,
		"body":          parsedBody,
		"ok":            resp.IsSuccess(),
	}, nil
}

// applyHTTPAuth mirrors the teacher's applyAuthentication switch, sourcing
// secrets through the node's credentialRef rather than a separate
// credentials map passed alongside the config.
func applyHTTPAuth(req *resty.Request, node model.Node, ec handler.ExecutionContext) error {
	authType := dynvalue.GetString(node.Parameters, "authentication", "none")
	cred, _ := ec.Credential(node.CredentialRef)

	switch authType {
	case "basic":
		user := dynvalue.GetString(node.Parameters, "basicAuthUser", "")
		pass := dynvalue.GetString(node.Parameters, "basicAuthPassword", cred)
		req.SetBasicAuth(user, pass)

	case "bearer":
		token := dynvalue.GetString(node.Parameters, "bearerToken", cred)
		req.SetAuthToken(token)

	case "apiKey":
		name := dynvalue.GetString(node.Parameters, "apiKeyName", "X-API-Key")
		value := dynvalue.GetString(node.Parameters, "apiKeyValue", cred)
		if dynvalue.GetString(node.Parameters, "apiKeyLocation", "header") == "query" {
			req.SetQueryParam(name, value)
		} else {
			req.SetHeader(name, value)
		}

	case "oauth2":
		if cred != "" {
			req.SetAuthToken(cred)
		}
	}
	return nil
}

var _ handler.Handler = (*HTTPRequestHandler)(nil)

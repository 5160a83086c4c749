package actions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/expression"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

const ragDocumentCacheSize = 4096

// RAGHandler answers a query by embedding it and every candidate document
// (cached by content hash via golang-lru so a document repeated across
// runs is embedded once), ranking documents by cosine similarity, and
// returning the top matches. This is the node's whole job per §5's
// domain-stack binding: embedding plumbing plus vector similarity, no
// persistent vector store.
type RAGHandler struct {
	embedding *EmbeddingHandler
	cache     *lru.Cache[string, []float64]
}

func NewRAGHandler() *RAGHandler {
	cache, _ := lru.New[string, []float64](ragDocumentCacheSize)
	return &RAGHandler{embedding: NewEmbeddingHandler(), cache: cache}
}

func (*RAGHandler) NodeType() string { return "rag" }

func (h *RAGHandler) Execute(ctx context.Context, node model.Node, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	exprCtx := expression.NewContext(input, ec.Workflow().Settings, nil, ec.Credential)

	query := expression.Interpolate(dynvalue.GetString(node.Parameters, "query", ""), exprCtx)
	if query == "" {
		return nil, model.NewInvalidWorkflowError("rag node missing query parameter")
	}

	documents := ragDocumentsFrom(node.Parameters, input)
	if len(documents) == 0 {
		return nil, model.NewInvalidWorkflowError("rag node requires at least one document")
	}

	topK := dynvalue.GetInt(node.Parameters, "topK", 3)
	provider := dynvalue.GetString(node.Parameters, "provider", "openai")
	modelName := dynvalue.GetString(node.Parameters, "model", "")
	apiKey, _ := ec.Credential(node.CredentialRef)

	queryVec, err := h.embedding.embed(ctx, provider, modelName, apiKey, node, query)
	if err != nil {
		return nil, model.NewHandlerFailureError("rag node: failed to embed query", err)
	}

	type scored struct {
		doc   ragDocument
		score float64
	}
	results := make([]scored, 0, len(documents))
	for _, doc := range documents {
		vec, err := h.embedCached(ctx, provider, modelName, apiKey, node, doc.Text)
		if err != nil {
			return nil, model.NewHandlerFailureError("rag node: failed to embed document", err)
		}
		results = append(results, scored{doc: doc, score: cosineSimilarity(queryVec, vec)})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}

	matches := make([]map[string]any, len(results))
	for i, r := range results {
		matches[i] = map[string]any{"id": r.doc.ID, "text": r.doc.Text, "score": r.score}
	}

	return map[string]any{"query": query, "matches": matches}, nil
}

type ragDocument struct {
	ID   string
	Text string
}

// ragDocumentsFrom reads the node's "documents" parameter, a list of
// {id, text} objects, falling back to a plain string list under
// input["documents"] so upstream nodes can feed candidates directly.
func ragDocumentsFrom(params, input map[string]any) []ragDocument {
	var docs []ragDocument
	raw := dynvalue.GetSlice(params, "documents")
	if len(raw) == 0 {
		raw = dynvalue.ToSlice(input["documents"])
	}
	for i, item := range raw {
		switch v := item.(type) {
		case map[string]any:
			docs = append(docs, ragDocument{
				ID:   dynvalue.GetString(v, "id", dynvalue.GetString(v, "text", "")),
				Text: dynvalue.GetString(v, "text", ""),
			})
		case string:
			docs = append(docs, ragDocument{ID: strconv.Itoa(i), Text: v})
		}
	}
	return docs
}

func (h *RAGHandler) embedCached(ctx context.Context, provider, modelName, apiKey string, node model.Node, text string) ([]float64, error) {
	key := provider + ":" + modelName + ":" + hashText(text)
	if vec, ok := h.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := h.embedding.embed(ctx, provider, modelName, apiKey, node, text)
	if err != nil {
		return nil, err
	}
	h.cache.Add(key, vec)
	return vec, nil
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ handler.Handler = (*RAGHandler)(nil)

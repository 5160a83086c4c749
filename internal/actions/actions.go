// Package actions implements the engine's action and trigger node
// handlers: the pure-I/O node bodies spec.md scopes out of the core
// (HTTP, code evaluation, shell commands, data shaping, LLM/embedding/RAG
// calls) plus the trigger stubs that seed a run's initial input.
//
// Every handler here follows the teacher's per-node idiom from
// internal/node/runtime/nodes: a small struct implementing the handler
// contract, config read through internal/dynvalue, and self-description
// kept close to the Execute method. Register wires every handler into a
// handler.Registry, the explicit equivalent of the teacher's
// init()-time runtime.Register calls (this module threads one Registry
// per process rather than relying on a package-level global).
package actions

import "github.com/flowbase/workflow-engine/internal/handler"

// Register adds every action and trigger handler in this package to reg.
// Call once at startup, after coordination handlers have been registered.
func Register(reg *handler.Registry) {
	reg.Register(ManualTriggerHandler{})
	reg.Register(NewScheduleTriggerHandler())
	reg.Register(WebhookTriggerHandler{})

	reg.Register(SetHandler{})
	reg.Register(FilterHandler{})
	reg.Register(SortHandler{})

	reg.Register(NewHTTPRequestHandler())
	reg.Register(NewCodeHandler())
	reg.Register(NewExecuteCommandHandler())

	reg.Register(NewLLMChatHandler())
	reg.Register(NewTextClassifierHandler())
	reg.Register(NewEmbeddingHandler())
	reg.Register(NewRAGHandler())
}

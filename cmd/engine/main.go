package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/flowbase/workflow-engine/internal/actions"
	"github.com/flowbase/workflow-engine/internal/coordination"
	"github.com/flowbase/workflow-engine/internal/credentials"
	"github.com/flowbase/workflow-engine/internal/engine"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/logpipeline"
	"github.com/flowbase/workflow-engine/internal/model"
	"github.com/flowbase/workflow-engine/internal/platform/config"
	"github.com/flowbase/workflow-engine/internal/platform/logger"
	"github.com/flowbase/workflow-engine/internal/platform/telemetry"
	"github.com/flowbase/workflow-engine/internal/settings"
	"github.com/flowbase/workflow-engine/internal/store"

	"github.com/redis/go-redis/v9"
)

const servicePort = 8090

// Server exposes the engine over HTTP: health and metrics for operators,
// and the execute/execute-async/cancel surface the external-interfaces
// contract names as cmd/engine's job.
type Server struct {
	eng       *engine.Engine
	workflows *store.MemoryWorkflowStore // nil when running against Postgres
	telemetry *telemetry.Telemetry
	log       logger.Logger
}

func main() {
	cfg, err := config.Load("engine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger)
	log.Info("starting workflow engine", "version", cfg.Version, "environment", cfg.Service.Environment)

	tel, err := telemetry.New(telemetry.Config{
		ServiceName:    "workflow-engine",
		JaegerEndpoint: cfg.Telemetry.JaegerEndpoint,
		MetricsEnabled: cfg.Telemetry.MetricsEnabled,
		TracingEnabled: cfg.Telemetry.TracingEnabled,
	})
	if err != nil {
		log.Fatal("failed to initialize telemetry", "error", err)
	}
	defer tel.Close()

	pipeline := logpipeline.NewPipeline()
	pipeline.AddSink(logpipeline.NewLoggerSink(log), logpipeline.LevelDebug)
	if tel.Metrics != nil {
		pipeline.AddSink(logpipeline.NewMetricsSink(tel.Registerer()), logpipeline.LevelInfo)
	}

	encryptor, err := credentials.NewEncryptor(credentialsConfig())
	if err != nil {
		log.Fatal("failed to initialize credential encryptor", "error", err)
	}
	credStore := credentials.NewInMemoryStore(encryptor)
	seedDevCredentials(credStore, log)

	settingsStore := buildSettingsStore(cfg, log)

	workflows, executions, memWorkflows := buildStores(cfg, log)

	registry := buildRegistry()

	eng := engine.New(workflows, executions, registry, credStore, settingsStore, log, pipeline, tel.Metrics)

	srv := &Server{eng: eng, workflows: memWorkflows, telemetry: tel, log: log}

	mux := http.NewServeMux()
	srv.registerRoutes(mux)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", servicePort),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.ReadTimeout,
	}

	go func() {
		log.Info("http server listening", "port", servicePort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}

// credentialsConfig returns the encryptor configuration, overridable by
// environment since the default passphrase is only fit for local dev.
func credentialsConfig() credentials.EncryptorConfig {
	cfg := credentials.DefaultEncryptorConfig()
	if p := os.Getenv("CREDENTIALS_PASSPHRASE"); p != "" {
		cfg.Passphrase = p
	}
	return cfg
}

// seedDevCredentials loads CRED_<name>=<secret> environment variables into
// credStore, so a workflow's CredentialRef can resolve by name without a
// dedicated credentials-management surface. Absent any, the store is
// simply empty and credential-bearing nodes fail with ErrCredentialMissing.
func seedDevCredentials(credStore *credentials.InMemoryStore, log logger.Logger) {
	const prefix = "CRED_"
	for _, kv := range os.Environ() {
		var name, val string
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				name, val = kv[:i], kv[i+1:]
				break
			}
		}
		if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		credName := name[len(prefix):]
		if err := credStore.Put(credName, credName, val); err != nil {
			log.Warn("failed to seed credential", "name", credName, "error", err)
		}
	}
}

// buildSettingsStore returns a RedisStore when Redis is configured,
// otherwise an in-process map seeded with the known setting keys from
// ExecutionConfig; the RedisStore does not receive that seed. Redis
// connectivity isn't probed here; a RedisStore returns the caller's default
// on a failed Get, which is enough to keep execution going in a dev
// environment that sets REDIS_HOST without a live Redis.
func buildSettingsStore(cfg *config.Config, log logger.Logger) settings.Store {
	seed := map[string]string{
		settings.KeyExecutionTimeoutSec:  strconv.Itoa(cfg.Execution.DefaultTimeoutSeconds),
		settings.KeyExecutionMaxParallel: strconv.Itoa(cfg.Execution.MaxParallel),
		settings.KeyRetryAttempts:        strconv.Itoa(cfg.Execution.RetryAttempts),
		settings.KeyRetryDelayMs:         strconv.Itoa(cfg.Execution.RetryDelayMs),
		settings.KeyExecutionLogLevel:    cfg.Execution.LogLevel,
		fmt.Sprintf(settings.KeyAIDefaultModel, cfg.Execution.AIDefaultProvider): cfg.Execution.AIDefaultModel,
		fmt.Sprintf(settings.KeyAIBaseURL, cfg.Execution.AIDefaultProvider):      cfg.Execution.AIBaseURL,
		fmt.Sprintf(settings.KeyAIAPIKey, cfg.Execution.AIDefaultProvider):       cfg.Execution.AIAPIKey,
	}

	if os.Getenv("REDIS_HOST") == "" && cfg.Redis.Host == "localhost" && os.Getenv("SETTINGS_BACKEND") != "redis" {
		return settings.NewMapStore(seed)
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr(),
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	redisStore, err := settings.NewRedisStore(client, 512)
	if err != nil {
		log.Warn("failed to build redis settings store, falling back to in-memory", "error", err)
		return settings.NewMapStore(seed)
	}
	log.Info("settings store backed by redis", "addr", cfg.Redis.Addr())
	return redisStore
}

// buildStores connects Postgres if DATABASE_BACKEND=postgres, otherwise falls back to
// the in-memory stores, returning the memory workflow store separately (nil
// when unused) so the HTTP layer can expose a dev-mode registration route.
func buildStores(cfg *config.Config, log logger.Logger) (engine.WorkflowStore, engine.ExecutionStore, *store.MemoryWorkflowStore) {
	if os.Getenv("DATABASE_BACKEND") == "postgres" {
		pool, err := store.Connect(context.Background(), cfg.Database)
		if err != nil {
			log.Fatal("failed to connect to postgres", "error", err)
		}
		log.Info("stores backed by postgres", "host", cfg.Database.Host, "database", cfg.Database.Database)
		return store.NewPostgresWorkflowStore(pool), store.NewPostgresExecutionStore(pool), nil
	}

	log.Info("stores backed by in-memory maps (set DATABASE_BACKEND=postgres for durable storage)")
	wf := store.NewMemoryWorkflowStore()
	return wf, store.NewMemoryExecutionStore(), wf
}

// buildRegistry registers every coordination and action handler. The four
// control-flow handlers that recurse through operations (loop, retry,
// tryCatch, rateLimit) hold a pointer back to reg itself; that's safe
// because Lookup only runs after every Register call below has completed.
func buildRegistry() *handler.Registry {
	reg := handler.NewRegistry()

	reg.Register(coordination.IfHandler{})
	reg.Register(coordination.SwitchHandler{})
	reg.Register(coordination.SubworkflowHandler{})
	reg.Register(coordination.LoopHandler{Registry: reg})
	reg.Register(coordination.TryCatchHandler{Registry: reg})
	reg.Register(coordination.RetryHandler{Registry: reg})
	reg.Register(coordination.RateLimitHandler{Registry: reg, Buckets: coordination.NewBuckets()})

	actions.Register(reg)

	return reg
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.telemetry.MetricsHandler())
	mux.HandleFunc("/api/v1/workflows/execute", s.handleExecute)
	mux.HandleFunc("/api/v1/workflows/execute/async", s.handleExecuteAsync)
	mux.HandleFunc("/api/v1/executions/cancel", s.handleCancel)
	if s.workflows != nil {
		mux.HandleFunc("/api/v1/workflows/register", s.handleRegisterWorkflow)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]any{"status": "healthy", "service": "workflow-engine"})
}

type executeRequest struct {
	WorkflowID string         `json:"workflowId"`
	Input      map[string]any `json:"input"`
	Trigger    string         `json:"trigger"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	exec, err := s.eng.Execute(r.Context(), req.WorkflowID, req.Input, triggerFromString(req.Trigger))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(exec)
}

func (s *Server) handleExecuteAsync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	executionID, err := s.eng.ExecuteAsync(context.Background(), req.WorkflowID, req.Input, triggerFromString(req.Trigger))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"executionId": executionID, "status": "running"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ExecutionID string `json:"executionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.eng.Cancel(req.ExecutionID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleRegisterWorkflow lets a dev environment running on the in-memory
// store seed workflow definitions without a database migration.
func (s *Server) handleRegisterWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var wf model.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := wf.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.workflows.Put(wf)
	w.WriteHeader(http.StatusCreated)
}

func triggerFromString(t string) model.TriggerType {
	switch model.TriggerType(t) {
	case model.TriggerSchedule, model.TriggerWebhook, model.TriggerSubworkflow:
		return model.TriggerType(t)
	default:
		return model.TriggerManual
	}
}

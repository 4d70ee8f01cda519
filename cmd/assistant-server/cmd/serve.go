package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.temporal.io/sdk/client"

	"github.com/codeforge/assistant/cmd/assistant-server/httpapi"
	"github.com/codeforge/assistant/internal/config"
	"github.com/codeforge/assistant/runtime/agents"
	"github.com/codeforge/assistant/runtime/agents/aggregator"
	"github.com/codeforge/assistant/runtime/agents/coder"
	"github.com/codeforge/assistant/runtime/agents/planner"
	"github.com/codeforge/assistant/runtime/agents/qagate"
	"github.com/codeforge/assistant/runtime/agents/refiner"
	"github.com/codeforge/assistant/runtime/agents/reviewer"
	"github.com/codeforge/assistant/runtime/agents/securitygate"
	"github.com/codeforge/assistant/runtime/agents/supervisor"
	"github.com/codeforge/assistant/runtime/broker"
	"github.com/codeforge/assistant/runtime/bus"
	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/engine"
	engineinmem "github.com/codeforge/assistant/runtime/engine/inmem"
	enginetemporal "github.com/codeforge/assistant/runtime/engine/temporal"
	"github.com/codeforge/assistant/runtime/llm"
	"github.com/codeforge/assistant/runtime/llm/anthropic"
	"github.com/codeforge/assistant/runtime/llm/openai"
	"github.com/codeforge/assistant/runtime/orchestrator"
	"github.com/codeforge/assistant/runtime/store"
	"github.com/codeforge/assistant/runtime/store/memckpt"
	"github.com/codeforge/assistant/runtime/store/memconv"
	"github.com/codeforge/assistant/runtime/store/mongockpt"
	"github.com/codeforge/assistant/runtime/store/mongoconv"
	"github.com/codeforge/assistant/runtime/store/pgckpt"
	"github.com/codeforge/assistant/runtime/store/sqliteconv"
	"github.com/codeforge/assistant/runtime/telemetry"
	"github.com/codeforge/assistant/runtime/tools"
	"github.com/codeforge/assistant/runtime/tools/codesearch"
	"github.com/codeforge/assistant/runtime/workspace"
)

// Exit codes per spec.md §6.
const (
	exitOK             = 0
	exitConfigError    = 2
	exitStorageUnavail = 3
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant-server HTTP/SSE/WebSocket API",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runServe())
		},
	}
}

func runServe() int {
	_ = godotenv.Load(resolveEnvFile())

	var warnings []string
	cfg, err := config.Load(func(msg string) { warnings = append(warnings, msg) })
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return exitConfigError
	}

	tel := telemetry.Set{
		Logger:  telemetry.NewClueLogger(),
		Metrics: telemetry.NewClueMetrics("assistant-server"),
		Tracer:  telemetry.NewClueTracer("assistant-server"),
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, w := range warnings {
		tel.Logger.Warn(ctx, "config warning", "detail", w)
	}

	conv, ckpt, closeStores, err := buildStores(ctx, cfg)
	if err != nil {
		tel.Logger.Error(ctx, "storage backend unavailable at startup", "err", err)
		return exitStorageUnavail
	}
	defer closeStores()

	eng, closeEngine, err := buildEngine(cfg, tel)
	if err != nil {
		tel.Logger.Error(ctx, "engine backend unavailable at startup", "err", err)
		return exitStorageUnavail
	}
	defer closeEngine()

	ws, err := workspace.New(cfg.WorkspaceRoot)
	if err != nil {
		tel.Logger.Error(ctx, "cannot initialize workspace root", "err", err)
		return exitConfigError
	}

	toolReg := tools.New(cfg, tel.Logger)
	registerTools(toolReg, cfg, ws)

	handlers, err := buildHandlers(cfg)
	if err != nil {
		tel.Logger.Error(ctx, "cannot construct agent handlers", "err", err)
		return exitConfigError
	}

	brk := broker.New(tel.Logger)
	evbus := bus.New(256)
	orc := orchestrator.New(eng, handlers, toolReg, ws, brk, evbus, cfg, ckpt, tel)
	if err := orc.Register(ctx); err != nil {
		tel.Logger.Error(ctx, "cannot register workflow with engine", "err", err)
		return exitConfigError
	}

	srv := &httpapi.Server{
		Orchestrator: orc,
		Broker:       brk,
		Bus:          evbus,
		Conversation: conv,
		Checkpoints:  ckpt,
		Tools:        toolReg,
		Workspace:    ws,
		Config:       cfg,
		Telemetry:    tel,
	}
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.NewRouter(srv),
	}

	serveErr := make(chan error, 1)
	go func() {
		tel.Logger.Info(ctx, "assistant-server listening", "addr", cfg.HTTPAddr, "engine_backend", cfg.EngineBackend)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		tel.Logger.Info(context.Background(), "shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			tel.Logger.Error(context.Background(), "http server failed", "err", err)
			return exitConfigError
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		tel.Logger.Error(shutdownCtx, "graceful shutdown failed", "err", err)
	}
	return exitOK
}

// buildStores constructs the C9 ConversationStore/WorkflowCheckpoint pair
// selected by Config.ConversationBackend/Config.CheckpointBackend, and
// returns a cleanup func that releases any underlying connection.
func buildStores(ctx context.Context, cfg *config.Config) (store.ConversationStore, store.WorkflowCheckpoint, func(), error) {
	var (
		conv       store.ConversationStore
		ckpt       store.WorkflowCheckpoint
		mongoConn  *mongodriver.Client
		closeFuncs []func()
	)
	closeAll := func() {
		for i := len(closeFuncs) - 1; i >= 0; i-- {
			closeFuncs[i]()
		}
	}

	needsMongo := cfg.ConversationBackend == "mongo" || cfg.CheckpointBackend == "mongo"
	if needsMongo {
		client, err := mongodriver.Connect(options.Client().ApplyURI(cfg.MongoURI)) // mongo-driver/v2 dropped the ctx parameter from Connect
		if err != nil {
			return nil, nil, nil, fmt.Errorf("mongo connect: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			return nil, nil, nil, fmt.Errorf("mongo ping: %w", err)
		}
		mongoConn = client
		closeFuncs = append(closeFuncs, func() { _ = client.Disconnect(context.Background()) })
	}

	switch cfg.ConversationBackend {
	case "mongo":
		s, err := mongoconv.New(mongoconv.Options{Client: mongoConn, Database: cfg.MongoDatabase})
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("mongoconv: %w", err)
		}
		conv = s
	case "sqlite":
		s, err := sqliteconv.Open(cfg.SQLitePath)
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("sqliteconv: %w", err)
		}
		conv = s
	default:
		conv = memconv.New(nil)
	}

	switch cfg.CheckpointBackend {
	case "mongo":
		s, err := mongockpt.New(mongockpt.Options{Client: mongoConn, Database: cfg.MongoDatabase})
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("mongockpt: %w", err)
		}
		ckpt = s
	case "postgres":
		s, err := pgckpt.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("pgckpt: %w", err)
		}
		closeFuncs = append(closeFuncs, s.Close)
		ckpt = s
	default:
		ckpt = memckpt.New()
	}

	return conv, ckpt, closeAll, nil
}

// buildEngine selects the Workflow Engine backend per Config.EngineBackend.
func buildEngine(cfg *config.Config, tel telemetry.Set) (engine.Engine, func(), error) {
	switch cfg.EngineBackend {
	case "temporal":
		eng, err := enginetemporal.New(enginetemporal.Options{
			ClientOptions: &client.Options{HostPort: cfg.TemporalHost},
			TaskQueue:     "assistant-workflows",
			Telemetry:     tel,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("temporal engine: %w", err)
		}
		eng.Worker().Start()
		return eng, func() { eng.Worker().Stop(); eng.Close() }, nil
	default:
		return engineinmem.New(tel), func() {}, nil
	}
}

func registerTools(reg *tools.Registry, cfg *config.Config, ws *workspace.Manager) {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	for _, t := range []tools.Tool{
		tools.NewGitStatusTool(cfg.DefaultWorkspace),
		tools.NewGitDiffTool(cfg.DefaultWorkspace),
		tools.NewGitLogTool(cfg.DefaultWorkspace),
		tools.NewGitBranchTool(cfg.DefaultWorkspace),
		tools.NewGitCommitTool(cfg.DefaultWorkspace),
		tools.NewExecutePythonTool(cfg.DefaultWorkspace),
		tools.NewRunTestsTool(cfg.DefaultWorkspace, ""),
		tools.NewLintCodeTool(cfg.DefaultWorkspace, ""),
		tools.NewHTTPRequestTool(httpClient),
		tools.NewDownloadFileTool(httpClient, cfg.DefaultWorkspace),
	} {
		if err := reg.Register(t); err != nil {
			panic(fmt.Sprintf("registering tool %s: %v", t.Name(), err))
		}
	}

	index := codesearch.New()
	for _, t := range tools.NewFileTools(ws, "") {
		_ = reg.Register(t)
	}
	_ = reg.Register(tools.NewCodeSearchTool(index, ""))
}

// buildHandlers constructs one Agent Handler per domain.AgentRole, wiring
// the LLM-backed roles to Config.LLMProvider (spec.md §4.3/§4.4).
func buildHandlers(cfg *config.Config) (map[domain.AgentRole]agents.Handler, error) {
	client := buildLLMClient(cfg)
	deps := agents.LLMDeps{Client: client, Model: cfg.LLMModel}

	secGate, err := securitygate.New("")
	if err != nil {
		return nil, fmt.Errorf("securitygate: %w", err)
	}

	return map[domain.AgentRole]agents.Handler{
		domain.RoleSupervisor:   supervisor.New(deps),
		domain.RolePlanner:      planner.New(deps),
		domain.RoleCoder:        coder.New(deps),
		domain.RoleReviewer:     reviewer.New(deps),
		domain.RoleQAGate:       qagate.New(""),
		domain.RoleSecurityGate: secGate,
		domain.RoleRefiner:      refiner.New(deps),
		domain.RoleAggregator:   aggregator.New(deps),
	}, nil
}

// buildLLMClient selects between the Anthropic and OpenAI-compatible
// adapters per Config.LLMProvider. This repo's teacher kept provider
// selection behind a single typed flag rather than sniffing the model
// name, so LLM_PROVIDER (default "anthropic") is the source of truth.
func buildLLMClient(cfg *config.Config) llm.Client {
	endpoints := cfg.LLMEndpoints
	if len(endpoints) == 0 && cfg.LLMEndpoint != "" {
		endpoints = []string{cfg.LLMEndpoint}
	}
	switch cfg.LLMProvider {
	case "openai":
		return openai.New(cfg.LLMAPIKey, cfg.LLMModel, endpoints)
	default:
		return anthropic.New(cfg.LLMAPIKey, cfg.LLMModel, endpoints)
	}
}

package dexto

import (
	"context"
	"fmt"
	"sync"

	"github.com/dexto-ai/dexto-core/internal/approval"
	"github.com/dexto-ai/dexto-core/internal/dlog"
	"github.com/dexto-ai/dexto-core/internal/eventbus"
	"github.com/dexto-ai/dexto-core/internal/llm"
	"github.com/dexto-ai/dexto-core/internal/llm/anthropic"
	"github.com/dexto-ai/dexto-core/internal/llm/gemini"
	"github.com/dexto-ai/dexto-core/internal/llm/openai"
	"github.com/dexto-ai/dexto-core/internal/mcp"
	"github.com/dexto-ai/dexto-core/internal/plugins"
	"github.com/dexto-ai/dexto-core/internal/resources"
	"github.com/dexto-ai/dexto-core/internal/sessions"
	"github.com/dexto-ai/dexto-core/internal/storage"
	"github.com/dexto-ai/dexto-core/internal/telemetry"
	"github.com/dexto-ai/dexto-core/internal/tools"
	"github.com/dexto-ai/dexto-core/internal/tools/builtin"
	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// DextoAgent is the facade spec §4.11 describes: one struct wiring every
// other component together behind a lifecycle mutex, so a transport never
// touches a subsystem package directly.
type DextoAgent struct {
	mu      sync.Mutex
	started bool

	cfg Config

	bus     *eventbus.Bus
	logger  *dlog.Logger
	storage storage.Set

	resources *resources.Loader
	mcp       *mcp.Manager
	registry  *tools.Registry
	approvals *approval.Manager
	toolMgr   *tools.Manager
	plugins   *plugins.Manager
	sessions  *sessions.Manager
	telemetry *telemetry.Telemetry

	llmClient     llm.Client
	shutdownTrace func(context.Context) error
}

// NewDextoAgent constructs every subsystem from cfg but does not start the
// MCP connections or the session sweeper's consumers yet — call Start.
func NewDextoAgent(cfg Config) (*DextoAgent, error) {
	bus := eventbus.New()
	logger := dlog.New(cfg.Logger)

	db, err := storage.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("dexto: build database: %w", err)
	}
	cache, err := storage.NewCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("dexto: build cache: %w", err)
	}
	blobs, err := storage.NewBlobStore(context.Background(), cfg.BlobStore)
	if err != nil {
		return nil, fmt.Errorf("dexto: build blob store: %w", err)
	}
	storeSet := storage.Set{Database: db, Cache: cache, BlobStore: blobs}

	loader := resources.New()
	loader.Register(resources.FileBackend{})
	loader.Register(resources.NewHTTPBackend())
	if cfg.Resources.S3Region != "" {
		s3Backend, err := resources.NewS3Backend(context.Background(), cfg.Resources.S3Region)
		if err != nil {
			return nil, fmt.Errorf("dexto: build s3 resource backend: %w", err)
		}
		loader.Register(s3Backend)
	}

	tel, shutdownTrace := telemetry.New(cfg.Telemetry)

	mcpMgr := mcp.NewManager(logger, bus)

	registry := tools.NewRegistry()
	registerBuiltinTools(registry, cfg.Tools)

	policy := cfg.ApprovalPolicy
	if policy == nil {
		policy = dexto.NewPolicy()
	}
	approvals := approval.NewManager(policy, cfg.ApprovalHandler, bus)

	pluginMgr := plugins.NewManager(logger, bus)
	toolMgr := tools.NewManager(registry, approvals, pluginMgr, bus, logger)

	store := sessions.NewStore(db)
	sessionMgr := sessions.NewManager(sessions.RunDeps{
		Store: store, Bus: bus, Tools: toolMgr, Plugins: pluginMgr, Logger: logger, Telemetry: tel,
	}, cfg.Sessions)

	client, err := buildLLMClient(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("dexto: build llm client: %w", err)
	}

	return &DextoAgent{
		cfg:       cfg,
		bus:       bus,
		logger:    logger,
		storage:   storeSet,
		resources: loader,
		mcp:       mcpMgr,
		registry:  registry,
		approvals: approvals,
		toolMgr:   toolMgr,
		plugins:   pluginMgr,
		sessions:  sessionMgr,
		telemetry: tel,
		llmClient: client,

		shutdownTrace: shutdownTrace,
	}, nil
}

func registerBuiltinTools(registry *tools.Registry, cfg ToolsConfig) {
	if cfg.EnableEdit && cfg.WorkspaceRoot != "" {
		registry.Register(builtin.NewEditFileTool(cfg.WorkspaceRoot))
	}
	if cfg.EnableCreate && cfg.WorkspaceRoot != "" {
		registry.Register(builtin.NewCreateFilesTool(cfg.WorkspaceRoot))
	}
	// ask_user is scoped to a single session at construction time
	// (builtin.NewAskUserTool(sessionID, ...)) and so has no home in the
	// one Registry shared across every session; wiring it needs a
	// per-session tool overlay the Tool Manager does not yet have.
}

func buildLLMClient(cfg LLMConfig) (llm.Client, error) {
	if cfg.Client != nil {
		return cfg.Client, nil
	}
	switch cfg.Provider {
	case "", "anthropic":
		return anthropic.New(cfg.APIKey, cfg.BaseURL), nil
	case "openai":
		return openai.New(cfg.APIKey), nil
	case "gemini":
		return gemini.New(context.Background(), cfg.APIKey)
	default:
		return nil, fmt.Errorf("dexto: unknown llm provider %q", cfg.Provider)
	}
}

// Start connects every configured MCP server and syncs their tools into the
// shared Registry. Safe to call once; a second call is a no-op.
func (a *DextoAgent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	if len(a.cfg.MCPServers) > 0 {
		if err := a.mcp.Start(ctx, a.cfg.MCPServers); err != nil {
			return fmt.Errorf("dexto: start mcp servers: %w", err)
		}
		tools.SyncMCPTools(a.mcp, a.registry)
	}
	a.started = true
	return nil
}

// Close stops the MCP connections, the session sweeper, the trace exporter,
// and the storage set.
func (a *DextoAgent) Close() error {
	a.sessions.Close()
	if err := a.mcp.Stop(); err != nil {
		a.logger.Warn(context.Background(), "mcp shutdown returned an error", "error", err.Error())
	}
	if a.shutdownTrace != nil {
		if err := a.shutdownTrace(context.Background()); err != nil {
			a.logger.Warn(context.Background(), "trace exporter shutdown returned an error", "error", err.Error())
		}
	}
	return a.storage.Close()
}

// Metrics exposes the agent's Prometheus registry for a transport to serve
// at a /metrics endpoint.
func (a *DextoAgent) Metrics() *telemetry.Metrics {
	return a.telemetry.Metrics
}

// RegisterPlugin adds impl to the plugin pipeline under entry's name,
// priority, and blocking semantics.
func (a *DextoAgent) RegisterPlugin(impl plugins.Plugin, entry dexto.PluginEntry) error {
	return a.plugins.Register(impl, entry)
}

// CreateSession persists a new, empty session.
func (a *DextoAgent) CreateSession(ctx context.Context, title string) (dexto.SessionMeta, error) {
	return a.sessions.Create(ctx, title)
}

// GetSession returns a session's persisted metadata.
func (a *DextoAgent) GetSession(ctx context.Context, id string) (dexto.SessionMeta, error) {
	sess, err := a.sessions.Get(ctx, id)
	if err != nil {
		return dexto.SessionMeta{}, err
	}
	return sess.Meta(), nil
}

// ListSessions returns every persisted session's metadata.
func (a *DextoAgent) ListSessions(ctx context.Context) ([]dexto.SessionMeta, error) {
	return a.sessions.List(ctx)
}

// DeleteSession removes a session and its history permanently.
func (a *DextoAgent) DeleteSession(ctx context.Context, id string) error {
	return a.sessions.Delete(ctx, id)
}

// ResetConversation clears a session's message history.
func (a *DextoAgent) ResetConversation(ctx context.Context, id string) error {
	return a.sessions.ResetConversation(ctx, id)
}

// Cancel interrupts a session's in-progress run, if any.
func (a *DextoAgent) Cancel(ctx context.Context, sessionID string, returnQueue bool) error {
	return a.sessions.Cancel(ctx, sessionID, returnQueue)
}

// ClearMessageQueue drains a session's pending queued messages.
func (a *DextoAgent) ClearMessageQueue(ctx context.Context, sessionID string) ([]dexto.QueuedMessage, error) {
	return a.sessions.ClearMessageQueue(ctx, sessionID)
}

// LoadResource fetches a resource by URI through the Resource Loader.
func (a *DextoAgent) LoadResource(ctx context.Context, uri string) (resources.Resource, error) {
	return a.resources.Load(ctx, uri)
}

// Run sends content into sessionID: either it runs to completion and Run
// returns the final assistant text, or the session was already busy and the
// content was queued behind the run already in progress.
func (a *DextoAgent) Run(ctx context.Context, sessionID, content string) (sessions.RunOutcome, error) {
	catalogue := toolCatalogue(a.registry)
	opts := a.cfg.LLM.runOptions(a.llmClient, catalogue)
	return a.sessions.Run(ctx, opts, sessionID, content)
}

func toolCatalogue(registry *tools.Registry) []llm.ToolSpec {
	list := registry.List()
	specs := make([]llm.ToolSpec, 0, len(list))
	for _, t := range list {
		specs = append(specs, llm.ToolSpec{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return specs
}

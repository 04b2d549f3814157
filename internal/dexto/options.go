// Package dexto wires the Event Bus, Logger, Storage, Resource Loader, MCP
// Manager, Tool Manager, Approval Manager, Session Manager, LLM Subsystem,
// and Plugin Manager into one DextoAgent facade (spec §4.11), the only
// entrypoint a transport (CLI, server, SDK embedder) should ever need.
package dexto

import (
	"github.com/dexto-ai/dexto-core/internal/approval"
	"github.com/dexto-ai/dexto-core/internal/dlog"
	"github.com/dexto-ai/dexto-core/internal/llm"
	"github.com/dexto-ai/dexto-core/internal/mcp"
	"github.com/dexto-ai/dexto-core/internal/sessions"
	"github.com/dexto-ai/dexto-core/internal/storage"
	"github.com/dexto-ai/dexto-core/internal/telemetry"
	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// LLMConfig selects and configures the default model a run uses absent a
// per-call override.
type LLMConfig struct {
	Provider      string // "anthropic", "openai", "gemini"
	APIKey        string
	BaseURL       string // anthropic only; proxies/testing
	Model         string
	SystemPrompt  string
	MaxTokens     int
	ContextWindow int
	KeepLastTurns int
	MaxIterations int

	// Client overrides Provider/APIKey entirely when set, the escape hatch
	// for embedders bringing their own llm.Client and for tests driving the
	// facade against a scripted one.
	Client llm.Client
}

// ToolsConfig configures the builtin filesystem-backed tools. WorkspaceRoot
// is the single directory edit_file/create_files are allowed to touch.
type ToolsConfig struct {
	WorkspaceRoot string
	EnableAskUser bool
	EnableEdit    bool
	EnableCreate  bool
}

// ResourcesConfig configures the Resource Loader's backends. S3Region is
// optional; when empty, the loader registers only file and http(s) backends.
type ResourcesConfig struct {
	S3Region string
}

// Config is everything NewDextoAgent needs to assemble a running agent.
type Config struct {
	Logger    dlog.Config
	Database  storage.DatabaseConfig
	Cache     storage.CacheConfig
	BlobStore storage.BlobStoreConfig

	ApprovalPolicy  *dexto.Policy
	ApprovalHandler approval.Handler

	MCPServers []*mcp.ServerConfig

	Sessions  sessions.ManagerConfig
	Resources ResourcesConfig
	Telemetry telemetry.Config

	LLM   LLMConfig
	Tools ToolsConfig
}

// DefaultConfig returns a Config with every subsystem defaulted to its
// in-memory, no-credentials-required variant — enough to run the loop
// against a scripted llm.Client in tests, or as a starting point for a real
// deployment's overrides.
func DefaultConfig() Config {
	return Config{
		Logger:    dlog.Config{Level: "info", Format: "json"},
		Database:  storage.DatabaseConfig{Driver: "memory"},
		Cache:     storage.CacheConfig{Driver: "memory"},
		BlobStore: storage.BlobStoreConfig{Driver: "memory"},
		Sessions: sessions.ManagerConfig{
			MaxSessions:   sessions.DefaultMaxSessions,
			QueueCapacity: sessions.MinQueueCapacity,
			IdleTTL:       sessions.DefaultIdleTTL,
			SweepInterval: sessions.DefaultSweepInterval,
		},
		LLM: LLMConfig{
			Provider:      "anthropic",
			ContextWindow: llm.DefaultContextWindow,
			KeepLastTurns: 4,
			MaxIterations: sessions.DefaultMaxIterations,
		},
		Tools: ToolsConfig{EnableAskUser: true, EnableEdit: true, EnableCreate: true},
	}
}

func (c LLMConfig) runOptions(client llm.Client, catalogue []llm.ToolSpec) sessions.RunOptions {
	return sessions.RunOptions{
		Client:        client,
		Model:         c.Model,
		SystemPrompt:  c.SystemPrompt,
		ToolCatalogue: catalogue,
		MaxTokens:     c.MaxTokens,
		MaxIterations: c.MaxIterations,
		ContextWindow: c.ContextWindow,
		KeepLastTurns: c.KeepLastTurns,
	}
}

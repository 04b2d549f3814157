package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dexto-ai/dexto-core/internal/dexto"
	"github.com/dexto-ai/dexto-core/internal/mcp"
)

// fileConfig is the on-disk shape dextoagent.yaml is parsed into, a thin
// enrichment layer outside the core contract — the same split the teacher
// draws between its YAML config file and internal/agent's runtime config.
type fileConfig struct {
	LLM struct {
		Provider     string `yaml:"provider"`
		APIKey       string `yaml:"api_key"`
		BaseURL      string `yaml:"base_url"`
		Model        string `yaml:"model"`
		SystemPrompt string `yaml:"system_prompt"`
	} `yaml:"llm"`

	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`

	Tools struct {
		WorkspaceRoot string `yaml:"workspace_root"`
	} `yaml:"tools"`

	MCPServers []*mcp.ServerConfig `yaml:"mcp_servers"`
}

// loadConfig reads path and merges it onto dexto.DefaultConfig, matching the
// teacher's config.Load precedence of "defaults, then file overrides".
func loadConfig(path string) (dexto.Config, error) {
	cfg := dexto.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return dexto.Config{}, err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(buf, &fc); err != nil {
		return dexto.Config{}, err
	}

	if fc.LLM.Provider != "" {
		cfg.LLM.Provider = fc.LLM.Provider
	}
	if fc.LLM.APIKey != "" {
		cfg.LLM.APIKey = fc.LLM.APIKey
	}
	if fc.LLM.BaseURL != "" {
		cfg.LLM.BaseURL = fc.LLM.BaseURL
	}
	if fc.LLM.Model != "" {
		cfg.LLM.Model = fc.LLM.Model
	}
	if fc.LLM.SystemPrompt != "" {
		cfg.LLM.SystemPrompt = fc.LLM.SystemPrompt
	}
	if fc.Database.Driver != "" {
		cfg.Database.Driver = fc.Database.Driver
		cfg.Database.DSN = fc.Database.DSN
	}
	if fc.Tools.WorkspaceRoot != "" {
		cfg.Tools.WorkspaceRoot = fc.Tools.WorkspaceRoot
	}
	if len(fc.MCPServers) > 0 {
		cfg.MCPServers = fc.MCPServers
	}
	return cfg, nil
}

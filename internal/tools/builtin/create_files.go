package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// CreateFilesTool creates one or more files in a single call, failing the
// whole batch if any path would escape the workspace. Grounded on the
// teacher's internal/tools/files.WriteTool, generalized to batch writes.
type CreateFilesTool struct {
	resolver Resolver
}

// NewCreateFilesTool scopes writes to workspaceRoot.
func NewCreateFilesTool(workspaceRoot string) *CreateFilesTool {
	return &CreateFilesTool{resolver: Resolver{Root: workspaceRoot}}
}

func (t *CreateFilesTool) Name() string { return "create_files" }

func (t *CreateFilesTool) Description() string {
	return "Create one or more files in the workspace with the given contents."
}

func (t *CreateFilesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"files": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"path": {"type": "string"},
						"content": {"type": "string"},
						"overwrite": {"type": "boolean"}
					},
					"required": ["path", "content"]
				}
			}
		},
		"required": ["files"]
	}`)
}

func (t *CreateFilesTool) Execute(ctx context.Context, args json.RawMessage) (*dexto.ToolResult, error) {
	var input struct {
		Files []struct {
			Path      string `json:"path"`
			Content   string `json:"content"`
			Overwrite bool   `json:"overwrite"`
		} `json:"files"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if len(input.Files) == 0 {
		return errResult("files are required"), nil
	}

	resolved := make([]string, len(input.Files))
	for i, f := range input.Files {
		if strings.TrimSpace(f.Path) == "" {
			return errResult("path is required for every file"), nil
		}
		target, err := t.resolver.Resolve(f.Path)
		if err != nil {
			return errResult(err.Error()), nil
		}
		if !input.Files[i].Overwrite {
			if _, err := os.Stat(target); err == nil {
				return errResult(fmt.Sprintf("file already exists: %s", f.Path)), nil
			}
		}
		resolved[i] = target
	}

	created := make([]string, 0, len(input.Files))
	for i, f := range input.Files {
		if err := os.MkdirAll(filepath.Dir(resolved[i]), 0o755); err != nil {
			return errResult(fmt.Sprintf("create directory for %s: %v", f.Path, err)), nil
		}
		if err := os.WriteFile(resolved[i], []byte(f.Content), 0o644); err != nil {
			return errResult(fmt.Sprintf("write %s: %v", f.Path, err)), nil
		}
		created = append(created, f.Path)
	}

	payload, _ := json.Marshal(map[string]any{"created": created})
	return &dexto.ToolResult{Content: dexto.ToolResultValue{Structured: payload}}, nil
}

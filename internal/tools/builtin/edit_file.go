package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// EditFileTool applies find/replace edits to a file within the workspace.
// Grounded on the teacher's internal/tools/files.EditTool.
type EditFileTool struct {
	resolver Resolver
}

// NewEditFileTool scopes edits to workspaceRoot.
func NewEditFileTool(workspaceRoot string) *EditFileTool {
	return &EditFileTool{resolver: Resolver{Root: workspaceRoot}}
}

func (t *EditFileTool) Name() string { return "edit_file" }

func (t *EditFileTool) Description() string {
	return "Apply one or more find/replace edits to a file in the workspace."
}

func (t *EditFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to edit, relative to the workspace."},
			"edits": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"old_text": {"type": "string"},
						"new_text": {"type": "string"},
						"replace_all": {"type": "boolean"}
					},
					"required": ["old_text", "new_text"]
				}
			}
		},
		"required": ["path", "edits"]
	}`)
}

func (t *EditFileTool) Execute(ctx context.Context, args json.RawMessage) (*dexto.ToolResult, error) {
	var input struct {
		Path  string `json:"path"`
		Edits []struct {
			OldText    string `json:"old_text"`
			NewText    string `json:"new_text"`
			ReplaceAll bool   `json:"replace_all"`
		} `json:"edits"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return errResult("path is required"), nil
	}
	if len(input.Edits) == 0 {
		return errResult("edits are required"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return errResult(err.Error()), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return errResult(fmt.Sprintf("read file: %v", err)), nil
	}

	content := string(data)
	replacements := 0
	for _, edit := range input.Edits {
		if edit.OldText == "" {
			return errResult("old_text is required"), nil
		}
		if !strings.Contains(content, edit.OldText) {
			return errResult(fmt.Sprintf("old_text not found: %q", edit.OldText)), nil
		}
		if edit.ReplaceAll {
			replacements += strings.Count(content, edit.OldText)
			content = strings.ReplaceAll(content, edit.OldText, edit.NewText)
		} else {
			content = strings.Replace(content, edit.OldText, edit.NewText, 1)
			replacements++
		}
	}

	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return errResult(fmt.Sprintf("write file: %v", err)), nil
	}

	payload, _ := json.Marshal(map[string]any{"path": input.Path, "replacements": replacements})
	return &dexto.ToolResult{Content: dexto.ToolResultValue{Structured: payload}}, nil
}

func errResult(msg string) *dexto.ToolResult {
	return &dexto.ToolResult{Content: dexto.ToolResultValue{Text: msg}, IsError: true}
}

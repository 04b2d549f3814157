package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// Asker is the narrow slice of the Approval Manager ask_user needs — kept
// as an interface here so this package never imports internal/approval
// directly and can be unit tested against a fake.
type Asker interface {
	Ask(ctx context.Context, sessionID, prompt string) (dexto.ApprovalDecision, error)
}

// AskUserTool escalates a question to the human operator via the Approval
// Manager's elicitation path. It has no filesystem or MCP access.
type AskUserTool struct {
	sessionID string
	asker     Asker
}

// NewAskUserTool scopes the tool to one session's approval flow.
func NewAskUserTool(sessionID string, asker Asker) *AskUserTool {
	return &AskUserTool{sessionID: sessionID, asker: asker}
}

func (t *AskUserTool) Name() string { return "ask_user" }

func (t *AskUserTool) Description() string {
	return "Ask the human operator a clarifying question and wait for their answer."
}

func (t *AskUserTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"question": {"type": "string", "description": "The question to ask the user."}
		},
		"required": ["question"]
	}`)
}

func (t *AskUserTool) Execute(ctx context.Context, args json.RawMessage) (*dexto.ToolResult, error) {
	var input struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Question) == "" {
		return errResult("question is required"), nil
	}
	if t.asker == nil {
		return errResult("no approval handler registered to ask the user"), nil
	}

	decision, err := t.asker.Ask(ctx, t.sessionID, input.Question)
	if err != nil {
		return nil, err
	}

	switch decision.Status {
	case dexto.ApprovalTimedOut:
		return errResult("user did not respond before the approval timeout"), nil
	case dexto.ApprovalCancelled:
		return errResult("question was canceled"), nil
	case dexto.ApprovalDenied:
		return errResult("user declined to answer"), nil
	}

	payload, _ := json.Marshal(map[string]string{"answer": decision.ResponseText})
	return &dexto.ToolResult{Content: dexto.ToolResultValue{Structured: payload}}, nil
}

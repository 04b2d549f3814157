package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

func TestEditFileToolReplacesText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewEditFileTool(dir)
	args, _ := json.Marshal(map[string]any{
		"path":  "note.txt",
		"edits": []map[string]any{{"old_text": "world", "new_text": "dexto"}},
	})
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "hello dexto" {
		t.Fatalf("expected file content %q, got %q", "hello dexto", got)
	}
}

func TestEditFileToolRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	tool := NewEditFileTool(dir)
	args, _ := json.Marshal(map[string]any{
		"path":  "../outside.txt",
		"edits": []map[string]any{{"old_text": "a", "new_text": "b"}},
	})
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected path escape to be rejected")
	}
}

func TestEditFileToolMissingOldTextIsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	os.WriteFile(path, []byte("hello"), 0o644)

	tool := NewEditFileTool(dir)
	args, _ := json.Marshal(map[string]any{
		"path":  "note.txt",
		"edits": []map[string]any{{"old_text": "nope", "new_text": "x"}},
	})
	result, _ := tool.Execute(context.Background(), args)
	if !result.IsError {
		t.Fatal("expected missing old_text to produce an error result")
	}
}

func TestCreateFilesToolCreatesBatch(t *testing.T) {
	dir := t.TempDir()
	tool := NewCreateFilesTool(dir)
	args, _ := json.Marshal(map[string]any{
		"files": []map[string]any{
			{"path": "a.txt", "content": "A"},
			{"path": "nested/b.txt", "content": "B"},
		},
	})
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	for _, p := range []string{"a.txt", "nested/b.txt"} {
		if _, err := os.Stat(filepath.Join(dir, p)); err != nil {
			t.Fatalf("expected %s to exist: %v", p, err)
		}
	}
}

func TestCreateFilesToolRefusesOverwriteByDefault(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("existing"), 0o644)

	tool := NewCreateFilesTool(dir)
	args, _ := json.Marshal(map[string]any{
		"files": []map[string]any{{"path": "a.txt", "content": "new"}},
	})
	result, _ := tool.Execute(context.Background(), args)
	if !result.IsError {
		t.Fatal("expected create_files to refuse overwriting an existing file by default")
	}
}

type fakeAsker struct {
	decision dexto.ApprovalDecision
	err      error
}

func (f fakeAsker) Ask(ctx context.Context, sessionID, prompt string) (dexto.ApprovalDecision, error) {
	return f.decision, f.err
}

func TestAskUserToolReturnsAnswer(t *testing.T) {
	tool := NewAskUserTool("s1", fakeAsker{decision: dexto.ApprovalDecision{Status: dexto.ApprovalApproved, ResponseText: "blue"}})
	args, _ := json.Marshal(map[string]string{"question": "favorite color?"})
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	var decoded struct{ Answer string }
	json.Unmarshal(result.Content.Structured, &decoded)
	if decoded.Answer != "blue" {
		t.Fatalf("expected answer %q, got %q", "blue", decoded.Answer)
	}
}

func TestAskUserToolNoAskerIsError(t *testing.T) {
	tool := NewAskUserTool("s1", nil)
	args, _ := json.Marshal(map[string]string{"question": "hi?"})
	result, _ := tool.Execute(context.Background(), args)
	if !result.IsError {
		t.Fatal("expected missing asker to produce an error result")
	}
}

package dexto

// PluginEntry describes one registered plugin and its ordering/blocking
// semantics (spec §3, §4.12).
type PluginEntry struct {
	Name     string
	Priority int
	Blocking bool
	Enabled  bool
}

// ToolResult is what the Tool Manager hands back to the run loop after
// dispatch, approval, and plugin hooks have all run.
type ToolResult struct {
	ToolCallID string
	Content    ToolResultValue
	IsError    bool
	Reason     string
}

package toolregistry

import (
	"context"
	"encoding/json"

	"github.com/deskagent/core/internal/clipboard"
)

// clipboardReadTool exposes the host clipboard as a read-only built-in
// tool, letting the model check what a prior copy action captured
// without guessing from the screenshot alone.
type clipboardReadTool struct{}

func (clipboardReadTool) Name() string        { return "read_clipboard" }
func (clipboardReadTool) Description() string { return "Read the current contents of the system clipboard." }
func (clipboardReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}

func (clipboardReadTool) Execute(ctx context.Context, _ json.RawMessage) (*ToolResult, error) {
	text, err := clipboard.ReadFromClipboard()
	if err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &ToolResult{Content: text}, nil
}

type clipboardWriteTool struct{}

func (clipboardWriteTool) Name() string        { return "write_clipboard" }
func (clipboardWriteTool) Description() string { return "Write text to the system clipboard." }
func (clipboardWriteTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`)
}

func (clipboardWriteTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var args struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return &ToolResult{Content: "invalid params: " + err.Error(), IsError: true}, nil
	}
	if _, err := clipboard.CopyToClipboard(args.Text); err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &ToolResult{Content: "copied"}, nil
}

// RegisterBuiltinCatalog registers the static catalog of OS-level
// built-in tools that are always available alongside skill tools.
func RegisterBuiltinCatalog(r *Registry) {
	r.RegisterBuiltin(clipboardReadTool{})
	r.RegisterBuiltin(clipboardWriteTool{})
}

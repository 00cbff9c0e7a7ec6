package skills

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	execsafety "github.com/deskagent/core/internal/exec"
	"github.com/deskagent/core/internal/toolregistry"
	"github.com/deskagent/core/pkg/models"
)

// defaultTimeout bounds every skill invocation; no skill parameter
// overrides it.
const defaultTimeout = 30 * time.Second

// Tool adapts a parsed skill to the tool registry's dispatch surface.
// Invoking it renders the skill's command template with the call's
// arguments and runs it through the host shell. The skill's Markdown body
// is exposed via ActiveKnowledge; once the skill is invoked the
// orchestrator keeps it in the system prompt under "Active Skill
// knowledge" until the goal ends or another skill is invoked.
type Tool struct {
	skill *models.ParsedSkill
}

// NewTool wraps a parsed skill as a registry Tool.
func NewTool(skill *models.ParsedSkill) *Tool {
	return &Tool{skill: skill}
}

func (t *Tool) Name() string { return ToSnakeCase(t.skill.Name) }

func (t *Tool) Description() string { return t.skill.Description }

func (t *Tool) Schema() json.RawMessage {
	props := make(map[string]any, len(t.skill.Parameters))
	var required []string
	for _, p := range t.skill.Parameters {
		prop := map[string]any{"description": p.Description, "type": p.Type}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// ActiveKnowledge returns the Markdown body injected into the system
// prompt from this skill's invocation until the goal ends or another
// skill is invoked.
func (t *Tool) ActiveKnowledge() string { return t.skill.Body }

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*toolregistry.ToolResult, error) {
	args := map[string]any{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &args); err != nil {
			return &toolregistry.ToolResult{Content: fmt.Sprintf("invalid params: %v", err), IsError: true}, nil
		}
	}
	for _, p := range t.skill.Parameters {
		if _, ok := args[p.Name]; !ok && p.Default != nil {
			args[p.Name] = p.Default
		}
	}
	for name, v := range args {
		if s, ok := v.(string); ok && !execsafety.IsSafeArgument(s) {
			return &toolregistry.ToolResult{Content: fmt.Sprintf("unsafe value for parameter %q", name), IsError: true}, nil
		}
	}

	rendered := RenderCommand(t.skill.Command, args)
	if _, err := execsafety.SanitizeExecutableValue(firstToken(rendered)); err != nil {
		return &toolregistry.ToolResult{Content: fmt.Sprintf("unsafe command: %v", err), IsError: true}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", rendered)
	cmd.Dir = t.skill.Path
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &toolregistry.ToolResult{
			Content: fmt.Sprintf("command failed: %v\nstderr: %s", err, stderr.String()),
			IsError: true,
		}, nil
	}
	return &toolregistry.ToolResult{Content: stdout.String()}, nil
}

func firstToken(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

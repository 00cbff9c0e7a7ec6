package toolregistry

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeTool struct{ name string }

func (f fakeTool) Name() string                  { return f.name }
func (f fakeTool) Description() string           { return "fake" }
func (f fakeTool) Schema() json.RawMessage       { return json.RawMessage(`{"type":"object"}`) }
func (f fakeTool) Execute(ctx context.Context, _ json.RawMessage) (*ToolResult, error) {
	return &ToolResult{Content: "ok"}, nil
}

func TestRegistry_ResolvesBuiltinAndSkillTools(t *testing.T) {
	r := New()
	r.RegisterBuiltin(fakeTool{name: "dup"})
	r.PublishSkills([]Tool{fakeTool{name: "skill_only"}})

	if _, ok := r.Get("dup"); !ok {
		t.Fatal("expected builtin tool resolvable")
	}
	if _, ok := r.Get("skill_only"); !ok {
		t.Fatal("expected skill tool resolvable")
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected missing tool to not resolve")
	}
}

func TestRegistry_PublishSkillsNotifiesSubscribers(t *testing.T) {
	r := New()
	var gotSpecs []Spec
	r.Subscribe(func(specs []Spec) { gotSpecs = specs })
	r.PublishSkills([]Tool{fakeTool{name: "a"}, fakeTool{name: "b"}})
	if len(gotSpecs) != 2 {
		t.Fatalf("expected 2 specs delivered to subscriber, got %d", len(gotSpecs))
	}
}

func TestRegistry_CopyOnWriteReplacesWholeSkillSet(t *testing.T) {
	r := New()
	r.PublishSkills([]Tool{fakeTool{name: "old"}})
	r.PublishSkills([]Tool{fakeTool{name: "new"}})
	if _, ok := r.Get("old"); ok {
		t.Fatal("expected old skill to be gone after republish")
	}
	if _, ok := r.Get("new"); !ok {
		t.Fatal("expected new skill present after republish")
	}
}

func TestRegistry_Execute(t *testing.T) {
	r := New()
	r.RegisterBuiltin(fakeTool{name: "t"})
	res, err := r.Execute(context.Background(), "t", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Content != "ok" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, err := r.Execute(context.Background(), "missing", nil); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

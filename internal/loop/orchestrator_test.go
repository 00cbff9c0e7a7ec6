package loop

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"
	"testing"

	"github.com/deskagent/core/internal/capture"
	"github.com/deskagent/core/internal/input"
	"github.com/deskagent/core/internal/localexec"
	"github.com/deskagent/core/internal/modelclient"
	"github.com/deskagent/core/internal/toolregistry"
)

type fakeBackend struct{}

func (fakeBackend) GrabFrame() (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 100, 100)), nil
}

func (fakeBackend) CursorPosition() (int, int, error) { return 10, 10, nil }

type failingBackend struct{ failures int }

func (b *failingBackend) GrabFrame() (image.Image, error) {
	if b.failures > 0 {
		b.failures--
		return nil, fmt.Errorf("display unavailable")
	}
	return image.NewRGBA(image.Rect(0, 0, 100, 100)), nil
}

func (b *failingBackend) CursorPosition() (int, int, error) { return 0, 0, nil }

type fakeCommander struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (f *fakeCommander) Run(_ context.Context, name string, _ ...string) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("injection refused")
	}
	return nil
}

func (f *fakeCommander) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// scriptedModel replays canned responses and records every request. When
// the script runs out, the last response repeats. onCall, when set, runs
// before each reply.
type scriptedModel struct {
	mu       sync.Mutex
	script   []string
	calls    int
	requests []*modelclient.ChatRequest
	onCall   func(n int)
}

func (m *scriptedModel) Chat(_ context.Context, req *modelclient.ChatRequest) (*modelclient.ChatResponse, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.requests = append(m.requests, req)
	idx := n - 1
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	text := m.script[idx]
	hook := m.onCall
	m.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return &modelclient.ChatResponse{Text: text}, nil
}

func (m *scriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

const completionBundle = `{"thought":"done","last_action_result":"none","execute_now":null,"is_goal_complete":true,"completion_summary":"Already open"}`

func newTestOrchestrator(t *testing.T, backend capture.Backend, cmd input.Commander, model modelclient.Client, cfg Config) *Orchestrator {
	t.Helper()
	capturer := capture.New(backend)
	executor := localexec.New(capturer, input.New(cmd), nil)
	registry := toolregistry.New()
	return New(cfg, capturer, executor, registry, model, nil, Options{})
}

func TestImmediateCompletion(t *testing.T) {
	cmd := &fakeCommander{}
	model := &scriptedModel{script: []string{completionBundle}}
	o := newTestOrchestrator(t, fakeBackend{}, cmd, model, DefaultConfig())

	result, err := o.ExecuteGoal(context.Background(), "open the browser")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Outcome != OutcomeSuccess || result.Summary != "Already open" {
		t.Errorf("result = %+v", result)
	}
	if model.Calls() != 1 {
		t.Errorf("model calls = %d, want 1", model.Calls())
	}
	if len(cmd.Calls()) != 0 {
		t.Errorf("executor calls = %v, want none", cmd.Calls())
	}
	if o.State() != StateCompleted {
		t.Errorf("state = %s", o.State())
	}
}

func TestTwoRoundFormFill(t *testing.T) {
	round1 := `{"thought":"fill the login form","last_action_result":"none","is_goal_complete":false,` +
		`"execute_now":{"intent":"Fill login","actions":[` +
		`{"type":"type","text":"admin"},{"type":"key","key":"tab"},{"type":"type","text":"secret"}]}}`
	cmd := &fakeCommander{}
	model := &scriptedModel{script: []string{round1, completionBundle}}
	o := newTestOrchestrator(t, fakeBackend{}, cmd, model, DefaultConfig())

	result, err := o.ExecuteGoal(context.Background(), "log in")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("result = %+v", result)
	}
	if model.Calls() != 2 {
		t.Errorf("model calls = %d, want 2", model.Calls())
	}
	want := []string{"type", "key", "type"}
	if got := cmd.Calls(); len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Errorf("executor calls = %v, want %v", got, want)
	}
}

func TestBoundaryForcesReobservation(t *testing.T) {
	round1 := `{"thought":"click then type","last_action_result":"none","is_goal_complete":false,` +
		`"execute_now":{"intent":"Click then type","actions":[` +
		`{"type":"click","coords":[500,300]},{"type":"type","text":"hello"}]}}`
	cmd := &fakeCommander{}
	model := &scriptedModel{script: []string{round1, completionBundle}}
	o := newTestOrchestrator(t, fakeBackend{}, cmd, model, DefaultConfig())

	result, err := o.ExecuteGoal(context.Background(), "click and type")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("result = %+v", result)
	}
	if model.Calls() != 2 {
		t.Errorf("model calls = %d, want 2", model.Calls())
	}
	// The type action after the click boundary must not run.
	if got := cmd.Calls(); len(got) != 1 || got[0] != "click" {
		t.Errorf("executor calls = %v, want [click]", got)
	}
	// The next round's prompt reports the truncated batch.
	prompt := model.requests[1].Messages[0].Text
	if !strings.Contains(prompt, "boundary") {
		t.Errorf("round-2 prompt should mention the boundary stop: %q", prompt)
	}
}

func TestRecoveryModeWarnsAfterSustainedFailure(t *testing.T) {
	bundle := `{"thought":"retry click","last_action_result":"failed","is_goal_complete":false,` +
		`"execute_now":{"intent":"Click button","actions":[{"type":"click","coords":[500,500]}]}}`
	cmd := &fakeCommander{fail: true}
	model := &scriptedModel{script: []string{bundle}}
	cfg := DefaultConfig()
	cfg.MaxIterations = 20
	o := newTestOrchestrator(t, fakeBackend{}, cmd, model, cfg)

	result, err := o.ExecuteGoal(context.Background(), "press the button")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Outcome != OutcomeFailure {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(result.Reason, "consecutive failure limit") {
		t.Errorf("reason = %q", result.Reason)
	}

	// The sixth prompt (first after five all-failure rounds) must demand
	// a different strategy and quote the last error.
	if model.Calls() < 6 {
		t.Fatalf("model calls = %d, want >= 6", model.Calls())
	}
	sixth := model.requests[5]
	if !strings.Contains(sixth.System, "Recovery mode") {
		t.Errorf("sixth system prompt lacks recovery warning:\n%s", sixth.System)
	}
	if !strings.Contains(sixth.System, "injection refused") {
		t.Errorf("sixth system prompt does not quote the last error:\n%s", sixth.System)
	}
	if !strings.Contains(sixth.Messages[0].Text, "DIFFERENT strategy") {
		t.Errorf("sixth round prompt does not demand a strategy change: %q", sixth.Messages[0].Text)
	}
}

func TestMaxIterationsYieldsPartial(t *testing.T) {
	bundle := `{"thought":"keep waiting","last_action_result":"none","is_goal_complete":false,` +
		`"execute_now":{"intent":"Wait","actions":[{"type":"wait","duration":1}]}}`
	cmd := &fakeCommander{}
	model := &scriptedModel{script: []string{bundle}}
	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	o := newTestOrchestrator(t, fakeBackend{}, cmd, model, cfg)

	result, err := o.ExecuteGoal(context.Background(), "never finishes")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Outcome != OutcomePartial || !strings.Contains(result.Reason, "max iterations") {
		t.Errorf("result = %+v", result)
	}
	if result.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", result.Iterations)
	}
}

func TestInterruptStopsAtIterationBoundary(t *testing.T) {
	bundle := `{"thought":"step","last_action_result":"none","is_goal_complete":false,` +
		`"execute_now":{"intent":"Step","actions":[{"type":"wait","duration":1}]}}`
	cmd := &fakeCommander{}
	model := &scriptedModel{script: []string{bundle}}
	cfg := DefaultConfig()
	cfg.MaxIterations = 50
	o := newTestOrchestrator(t, fakeBackend{}, cmd, model, cfg)
	model.onCall = func(n int) {
		if n == 3 {
			o.Interrupt()
		}
	}

	result, err := o.ExecuteGoal(context.Background(), "interruptible")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Outcome != OutcomePartial || result.Reason != "interrupted" {
		t.Errorf("result = %+v", result)
	}
	if model.Calls() > 3 {
		t.Errorf("model calls = %d, want <= 3", model.Calls())
	}
	if o.State() != StatePartial {
		t.Errorf("state = %s", o.State())
	}
}

func TestSecondGoalWhileRunningIsRejected(t *testing.T) {
	cmd := &fakeCommander{}
	started := make(chan struct{})
	release := make(chan struct{})
	model := &scriptedModel{script: []string{completionBundle}}
	model.onCall = func(n int) {
		close(started)
		<-release
	}
	o := newTestOrchestrator(t, fakeBackend{}, cmd, model, DefaultConfig())

	done := make(chan *Result, 1)
	go func() {
		r, _ := o.ExecuteGoal(context.Background(), "first")
		done <- r
	}()
	<-started

	if _, err := o.ExecuteGoal(context.Background(), "second"); err != ErrAlreadyRunning {
		t.Errorf("want ErrAlreadyRunning, got %v", err)
	}
	close(release)
	if r := <-done; r.Outcome != OutcomeSuccess {
		t.Errorf("first goal result = %+v", r)
	}
}

func TestCaptureFailureIsTransient(t *testing.T) {
	cmd := &fakeCommander{}
	model := &scriptedModel{script: []string{completionBundle}}
	o := newTestOrchestrator(t, &failingBackend{failures: 2}, cmd, model, DefaultConfig())

	result, err := o.ExecuteGoal(context.Background(), "resilient")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Outcome != OutcomeSuccess {
		t.Errorf("result = %+v", result)
	}
	// Two failed captures burn two iterations before the decision round.
	if result.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", result.Iterations)
	}
}

func TestMalformedModelOutputIsTransient(t *testing.T) {
	cmd := &fakeCommander{}
	model := &scriptedModel{script: []string{"I am not JSON at all.", completionBundle}}
	o := newTestOrchestrator(t, fakeBackend{}, cmd, model, DefaultConfig())

	result, err := o.ExecuteGoal(context.Background(), "tolerant")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Outcome != OutcomeSuccess {
		t.Errorf("result = %+v", result)
	}
	if model.Calls() != 2 {
		t.Errorf("model calls = %d, want 2", model.Calls())
	}
}

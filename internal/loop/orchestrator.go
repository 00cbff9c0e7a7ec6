// Package loop implements the decision loop: the Observe-Orient-Decide-
// Act cycle that captures the screen, asks the model for a decision
// bundle, dispatches the resulting actions, and reflects the outcome
// back into the next round's prompt.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deskagent/core/internal/capture"
	"github.com/deskagent/core/internal/compaction"
	"github.com/deskagent/core/internal/coreerrors"
	"github.com/deskagent/core/internal/decision"
	"github.com/deskagent/core/internal/events"
	"github.com/deskagent/core/internal/localexec"
	"github.com/deskagent/core/internal/modelclient"
	"github.com/deskagent/core/internal/sessions"
	"github.com/deskagent/core/internal/taskcontext"
	"github.com/deskagent/core/internal/toolregistry"
	"github.com/deskagent/core/pkg/models"
)

// Outcome classifies how a goal ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePartial Outcome = "partial"
)

// Result is the terminal report of one ExecuteGoal invocation.
type Result struct {
	Outcome    Outcome
	Summary    string
	Reason     string
	Iterations int
}

// State is the orchestrator's lifecycle state for one goal.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StatePartial   State = "partial"
)

// ErrAlreadyRunning is returned when ExecuteGoal is called while a goal
// is in flight. Exactly one goal may be active per process.
var ErrAlreadyRunning = errors.New("loop: a goal is already running")

// Config bounds one goal's execution.
type Config struct {
	MaxIterations          int
	MaxConsecutiveFailures int
	// MaxCorrections caps how many times a goal may enter recovery mode
	// before it is abandoned.
	MaxCorrections int
	Deadline       time.Duration
}

// DefaultConfig returns the documented bounds.
func DefaultConfig() Config {
	return Config{
		MaxIterations:          50,
		MaxConsecutiveFailures: 5,
		MaxCorrections:         5,
	}
}

// Orchestrator drives the decision loop. Construct with New, then call
// ExecuteGoal; Interrupt stops the loop at the next iteration boundary.
type Orchestrator struct {
	config    Config
	capturer  *capture.Capturer
	executor  *localexec.Executor
	registry  *toolregistry.Registry
	model     modelclient.Client
	bus       *events.Bus
	store     *sessions.Store
	compactor *compaction.Compactor
	logger    *slog.Logger
	metrics   *Metrics

	mu             sync.Mutex
	state          State
	cancelRunning  context.CancelFunc
	interrupted    bool
	skillKnowledge string
	historyDigest  string
}

// Options carries the optional collaborators. Store and Compactor may be
// nil (no persistence, no compaction); Metrics may be nil.
type Options struct {
	Store     *sessions.Store
	Compactor *compaction.Compactor
	Metrics   *Metrics
	Logger    *slog.Logger
}

// New constructs an Orchestrator.
func New(cfg Config, capturer *capture.Capturer, executor *localexec.Executor,
	registry *toolregistry.Registry, model modelclient.Client, bus *events.Bus,
	opts Options) *Orchestrator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 50
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 5
	}
	if cfg.MaxCorrections <= 0 {
		cfg.MaxCorrections = 5
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		config:    cfg,
		capturer:  capturer,
		executor:  executor,
		registry:  registry,
		model:     model,
		bus:       bus,
		store:     opts.Store,
		compactor: opts.Compactor,
		metrics:   opts.Metrics,
		logger:    logger,
		state:     StateIdle,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Interrupt requests a stop. The loop acknowledges at the next iteration
// boundary or the next inter-action pause; in-flight OS input events are
// not aborted.
func (o *Orchestrator) Interrupt() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.interrupted = true
	if o.cancelRunning != nil {
		o.cancelRunning()
	}
}

func (o *Orchestrator) isInterrupted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.interrupted
}

// ExecuteGoal runs the decision loop for one user goal until it
// completes, fails, or exhausts its budget.
func (o *Orchestrator) ExecuteGoal(ctx context.Context, userGoal string) (*Result, error) {
	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	o.state = StateRunning
	o.interrupted = false
	o.skillKnowledge = ""
	o.historyDigest = ""
	var runCtx context.Context
	var cancel context.CancelFunc
	if o.config.Deadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.config.Deadline)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	o.cancelRunning = cancel
	o.mu.Unlock()
	defer cancel()

	deadline := time.Time{}
	if o.config.Deadline > 0 {
		deadline = time.Now().Add(o.config.Deadline)
	}
	taskCtx := taskcontext.New(userGoal, deadline)

	o.emit(models.EventGoalStarted, map[string]string{"goal": userGoal})
	o.logger.Info("goal started", slog.String("goal", userGoal))

	result := o.run(runCtx, taskCtx)

	o.mu.Lock()
	switch result.Outcome {
	case OutcomeSuccess:
		o.state = StateCompleted
	case OutcomeFailure:
		o.state = StateFailed
	default:
		o.state = StatePartial
	}
	o.cancelRunning = nil
	o.mu.Unlock()

	switch result.Outcome {
	case OutcomeSuccess:
		o.emit(models.EventGoalCompleted, models.GoalCompletedPayload{Summary: result.Summary})
	case OutcomeFailure:
		o.emit(models.EventGoalFailed, models.GoalEndedPayload{Reason: result.Reason})
	case OutcomePartial:
		if result.Reason == "interrupted" {
			o.emit(models.EventGoalInterrupted, models.GoalEndedPayload{Reason: result.Reason})
		} else {
			o.emit(models.EventGoalFailed, models.GoalEndedPayload{Reason: result.Reason})
		}
	}
	if o.metrics != nil {
		o.metrics.GoalsFinished.WithLabelValues(string(result.Outcome)).Inc()
	}
	o.logger.Info("goal finished",
		slog.String("outcome", string(result.Outcome)),
		slog.Int("iterations", result.Iterations),
		slog.String("reason", result.Reason))
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, taskCtx *taskcontext.Context) *Result {
	corrections := 0
	wasRecovering := false
	for taskCtx.TotalIterations < o.config.MaxIterations {
		if !o.isInterrupted() && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return o.partial(taskCtx, "deadline exceeded")
		}
		if o.isInterrupted() || ctx.Err() != nil {
			return o.partial(taskCtx, "interrupted")
		}
		// At exactly the threshold the loop gets one recovery-mode round
		// (a different strategy demanded in the prompt); only sustained
		// failure past it is terminal.
		if taskCtx.ConsecutiveFailures > o.config.MaxConsecutiveFailures {
			return &Result{
				Outcome:    OutcomeFailure,
				Reason:     fmt.Sprintf("%s: %s", coreerrors.ConsecutiveFailureLimit, taskCtx.LastError),
				Iterations: taskCtx.TotalIterations,
			}
		}
		if !taskCtx.Deadline.IsZero() && time.Now().After(taskCtx.Deadline) {
			return o.partial(taskCtx, "deadline exceeded")
		}

		taskCtx.IncrementIteration()
		recovering := taskCtx.ShouldEnterRecoveryMode(o.config.MaxConsecutiveFailures)
		if recovering && !wasRecovering {
			corrections++
			if corrections > o.config.MaxCorrections {
				return &Result{
					Outcome:    OutcomeFailure,
					Reason:     fmt.Sprintf("correction budget exhausted: %s", taskCtx.LastError),
					Iterations: taskCtx.TotalIterations,
				}
			}
		}
		wasRecovering = recovering
		o.emit(models.EventIterationStarted, map[string]int{"iteration": taskCtx.TotalIterations})
		if o.metrics != nil {
			o.metrics.Iterations.Inc()
		}

		done, result := o.iterate(ctx, taskCtx)
		if done {
			return result
		}
	}
	return o.partial(taskCtx, string(coreerrors.MaxIterationsReached))
}

func (o *Orchestrator) partial(taskCtx *taskcontext.Context, reason string) *Result {
	return &Result{Outcome: OutcomePartial, Reason: reason, Iterations: taskCtx.TotalIterations}
}

// iterate runs one observe-decide-act round. It returns done=true with a
// terminal result, or done=false to continue.
func (o *Orchestrator) iterate(ctx context.Context, taskCtx *taskcontext.Context) (bool, *Result) {
	frame, err := o.capturer.Capture()
	if err != nil {
		o.recordTransientFailure(taskCtx, err)
		return false, nil
	}

	bundle, err := o.decide(ctx, taskCtx, frame)
	if err != nil {
		if ctx.Err() != nil {
			reason := "interrupted"
			if !o.isInterrupted() && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				reason = "deadline exceeded"
			}
			return true, o.partial(taskCtx, reason)
		}
		o.recordTransientFailure(taskCtx, err)
		return false, nil
	}
	if bundle == nil {
		// The model answered with tool calls only; their results are in
		// context and the next round re-observes.
		return false, nil
	}

	if bundle.IsGoalComplete {
		return true, &Result{
			Outcome:    OutcomeSuccess,
			Summary:    bundle.CompletionSummary,
			Iterations: taskCtx.TotalIterations,
		}
	}

	o.act(ctx, taskCtx, frame.Meta, bundle.ExecuteNow)
	return false, nil
}

// decide performs the model round: prompt assembly, the chat call,
// parsing, validation, and persistence. A nil bundle with nil error
// means the model chose tool calls instead of a decision.
func (o *Orchestrator) decide(ctx context.Context, taskCtx *taskcontext.Context, frame *capture.Frame) (*models.DecisionBundle, error) {
	system := o.buildSystemPrompt(taskCtx)
	round := o.buildRoundPrompt(taskCtx)

	req := &modelclient.ChatRequest{
		System: system,
		Messages: []modelclient.Message{
			{Role: modelclient.RoleUser, Text: round, ImageBase64: frame.JPEGBase64},
		},
		Tools:          o.registry.Specs(),
		ResponseSchema: modelclient.DecisionBundleSchema(),
	}

	start := time.Now()
	resp, err := o.model.Chat(ctx, req)
	if o.metrics != nil {
		o.metrics.ModelLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}

	o.persistTurn(ctx, round, true, resp.Text)

	if len(resp.ToolRequests) > 0 {
		o.dispatchTools(ctx, taskCtx, resp.ToolRequests)
		if resp.Text == "" {
			return nil, nil
		}
	}

	bundle, err := modelclient.ParseDecisionBundle(resp.Text)
	if err != nil {
		o.recordValidationMetric("parse_error")
		return nil, err
	}

	if err := decision.Validate(bundle); err != nil {
		var verr *decision.ValidationError
		if errors.As(err, &verr) {
			o.recordValidationMetric(verr.Name)
		}
		return nil, fmt.Errorf("%w: %v", coreerrors.ErrModelValidate, err)
	}
	return bundle, nil
}

// act executes the bundle's batch and reflects the outcome into context
// and events.
func (o *Orchestrator) act(ctx context.Context, taskCtx *taskcontext.Context, meta capture.Meta, en *models.ExecuteNow) {
	taskCtx.StartIntent(en.Intent)
	o.emit(models.EventRoundStarted, models.RoundStartedPayload{
		Intent:    en.Intent,
		Iteration: taskCtx.TotalIterations,
	})

	batch := o.executor.ExecuteBatch(ctx, meta, en)

	resultStrings := make([]string, 0, len(batch.PerActionResults))
	for _, ar := range batch.PerActionResults {
		taskCtx.RecordAction(ar.Action, ar.Success, ar.Message)
		resultStrings = append(resultStrings, ar.Message)

		kind := models.EventActionExecuted
		if !ar.Success {
			kind = models.EventActionFailed
		}
		o.emit(kind, models.ActionExecutedPayload{
			Action:  ar.Action.Describe(),
			Success: ar.Success,
			Message: ar.Message,
		})
	}

	taskCtx.RecordRoundActions(en, resultStrings)

	summary := taskCtx.LastRoundSummary
	if batch.HitBoundary && batch.ExecutedCount < len(en.Actions) {
		summary += fmt.Sprintf(" (stopped at boundary after %d of %d actions)",
			batch.ExecutedCount, len(en.Actions))
		taskCtx.LastRoundSummary = summary
	}
	taskCtx.CompleteIntent(batch.AllSuccess, summary)

	o.emit(models.EventRoundFinished, map[string]any{
		"intent":         en.Intent,
		"executed_count": batch.ExecutedCount,
		"all_success":    batch.AllSuccess,
		"hit_boundary":   batch.HitBoundary,
	})
}

// dispatchTools resolves and runs model-requested tools: built-ins
// first, then skills. A skill invocation additionally injects its
// Markdown knowledge into subsequent system prompts.
func (o *Orchestrator) dispatchTools(ctx context.Context, taskCtx *taskcontext.Context, requests []modelclient.ToolRequest) {
	for _, tr := range requests {
		tool, ok := o.registry.Get(tr.Name)
		if !ok {
			taskCtx.LastError = fmt.Sprintf("unknown tool %q", tr.Name)
			o.logger.Warn("model requested unknown tool", slog.String("name", tr.Name))
			continue
		}

		if ak, ok := tool.(interface{ ActiveKnowledge() string }); ok {
			o.mu.Lock()
			o.skillKnowledge = ak.ActiveKnowledge()
			o.mu.Unlock()
		}

		res, err := tool.Execute(ctx, tr.Params)
		content := ""
		success := err == nil
		if err != nil {
			content = err.Error()
		} else {
			content = res.Content
			success = !res.IsError
		}

		o.persistToolTurn(ctx, tr.Name, content)
		taskCtx.RecordAction(models.Action{Type: models.ActionType(tr.Name)}, success, truncate(content, 200))

		kind := models.EventActionExecuted
		if !success {
			kind = models.EventActionFailed
		}
		o.emit(kind, models.ActionExecutedPayload{
			Action:  "tool:" + tr.Name,
			Success: success,
			Message: truncate(content, 200),
		})
	}
}

func (o *Orchestrator) recordTransientFailure(taskCtx *taskcontext.Context, err error) {
	taskCtx.ConsecutiveFailures++
	taskCtx.LastError = err.Error()
	o.logger.Warn("iteration failed", slog.Int("iteration", taskCtx.TotalIterations), slog.Any("error", err))
}

func (o *Orchestrator) recordValidationMetric(name string) {
	if o.metrics != nil {
		o.metrics.ValidationFailures.WithLabelValues(name).Inc()
	}
}

func (o *Orchestrator) emit(kind models.EventKind, data any) {
	if o.bus != nil {
		o.bus.Emit(kind, data)
	}
}

// persistTurn writes the round's user prompt and assistant reply to the
// session store. Persistence errors never reach the loop's control flow.
func (o *Orchestrator) persistTurn(ctx context.Context, userText string, hasImage bool, assistantText string) {
	if o.store == nil {
		return
	}
	key := o.store.ActiveKey()
	if key == "" {
		return
	}
	if err := o.store.SaveMessage(ctx, key, models.RoleUser, userText, hasImage, len(userText)/4); err != nil {
		o.logger.Warn("persist user turn failed", slog.Any("error", err))
	}
	if err := o.store.SaveMessage(ctx, key, models.RoleAssistant, assistantText, false, len(assistantText)/4); err != nil {
		o.logger.Warn("persist assistant turn failed", slog.Any("error", err))
	}
	o.maybeCompact(ctx, key)
}

func (o *Orchestrator) persistToolTurn(ctx context.Context, name, content string) {
	if o.store == nil {
		return
	}
	key := o.store.ActiveKey()
	if key == "" {
		return
	}
	body := fmt.Sprintf("[%s] %s", name, content)
	if err := o.store.SaveMessage(ctx, key, models.RoleTool, body, false, len(body)/4); err != nil {
		o.logger.Warn("persist tool turn failed", slog.Any("error", err))
	}
}

// maybeCompact folds older history into a digest when the session's
// estimated tokens exceed the budget; the digest feeds the next round's
// system prompt.
func (o *Orchestrator) maybeCompact(ctx context.Context, key string) {
	if o.compactor == nil {
		return
	}
	history, err := o.store.LoadMessages(ctx, key)
	if err != nil {
		o.logger.Warn("load history for compaction failed", slog.Any("error", err))
		return
	}
	if !o.compactor.NeedsCompression(history) {
		return
	}
	compressed, err := o.compactor.Compress(ctx, history)
	if err != nil {
		o.logger.Warn("history compaction failed", slog.Any("error", err))
		return
	}
	if len(compressed) > 0 {
		o.mu.Lock()
		o.historyDigest = compressed[0].Content
		o.mu.Unlock()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

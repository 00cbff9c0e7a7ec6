// Package localexec implements the local executor: it expands one
// ExecuteNow bundle into input-driver calls, honoring the boundary rule
// that forces early termination and a fresh observation.
package localexec

import (
	"context"
	"fmt"
	"time"

	"github.com/deskagent/core/internal/capture"
	"github.com/deskagent/core/internal/coreerrors"
	"github.com/deskagent/core/internal/input"
	"github.com/deskagent/core/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks executor-level counters for the process's default
// Prometheus registry, satisfying the metrics-endpoint supplement.
type Metrics struct {
	ActionsExecuted *prometheus.CounterVec
	BoundaryStops   prometheus.Counter
}

// NewMetrics registers and returns the executor's metric collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActionsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskagent_actions_executed_total",
			Help: "Count of actions executed by the local executor, by type and outcome.",
		}, []string{"type", "outcome"}),
		BoundaryStops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deskagent_boundary_stops_total",
			Help: "Count of batches that terminated early at a boundary action.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ActionsExecuted, m.BoundaryStops)
	}
	return m
}

// Executor expands action bundles. It holds no long-lived state of its
// own; the Capturer and Driver it wraps own the click-position memo and
// the physical dispatch, respectively.
type Executor struct {
	capturer      *capture.Capturer
	driver        *input.Driver
	metrics       *Metrics
	actionTimeout time.Duration
	boundaryWait  time.Duration
}

// New constructs an Executor over the given capturer and driver. metrics
// may be nil to disable instrumentation.
func New(capturer *capture.Capturer, driver *input.Driver, metrics *Metrics) *Executor {
	return &Executor{capturer: capturer, driver: driver, metrics: metrics}
}

// SetActionTimeout bounds each individual action's execution; zero
// leaves actions unbounded.
func (e *Executor) SetActionTimeout(d time.Duration) { e.actionTimeout = d }

// SetBoundaryWait inserts a settle pause after a boundary stop, before
// control returns to the loop for the next observation.
func (e *Executor) SetBoundaryWait(d time.Duration) { e.boundaryWait = d }

// ExecuteBatch runs en's actions in order against the given frame
// metadata, stopping at the first boundary action that is not the batch's
// last action.
func (e *Executor) ExecuteBatch(ctx context.Context, meta capture.Meta, en *models.ExecuteNow) *models.BatchResult {
	result := &models.BatchResult{Intent: en.Intent, AllSuccess: true}
	if len(en.Actions) == 0 {
		return result
	}

	for i, action := range en.Actions {
		select {
		case <-ctx.Done():
			return result
		default:
		}

		ar := e.executeOne(ctx, meta, action)
		result.PerActionResults = append(result.PerActionResults, ar)
		result.ExecutedCount++
		if !ar.Success {
			result.AllSuccess = false
		}
		e.recordMetric(action, ar.Success)

		isLast := i == len(en.Actions)-1
		if action.IsBoundary() {
			result.HitBoundary = true
			if e.metrics != nil {
				e.metrics.BoundaryStops.Inc()
			}
			e.settleAfterBoundary(ctx)
			if !isLast {
				return result
			}
		}
	}
	return result
}

func (e *Executor) settleAfterBoundary(ctx context.Context) {
	if e.boundaryWait <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(e.boundaryWait):
	}
}

func (e *Executor) recordMetric(a models.Action, success bool) {
	if e.metrics == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	e.metrics.ActionsExecuted.WithLabelValues(string(a.Type), outcome).Inc()
}

func (e *Executor) executeOne(ctx context.Context, meta capture.Meta, a models.Action) models.ActionResult {
	if err := validateCoords(a); err != nil {
		return models.ActionResult{Action: a, Success: false, Message: err.Error()}
	}

	if e.actionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.actionTimeout)
		defer cancel()
	}

	var err error
	switch a.Type {
	case models.ActionClick:
		px, py := e.capturer.ToLogicalSafe(meta, a.Coords.X, a.Coords.Y)
		err = e.driver.ClickAt(ctx, px, py)
		if err == nil {
			e.capturer.RecordClick(meta, px, py)
		}
	case models.ActionDoubleClick:
		px, py := e.capturer.ToLogicalSafe(meta, a.Coords.X, a.Coords.Y)
		err = e.driver.DoubleClickAt(ctx, px, py)
		if err == nil {
			e.capturer.RecordClick(meta, px, py)
		}
	case models.ActionRightClick:
		px, py := e.capturer.ToLogicalSafe(meta, a.Coords.X, a.Coords.Y)
		err = e.driver.RightClickAt(ctx, px, py)
		if err == nil {
			e.capturer.RecordClick(meta, px, py)
		}
	case models.ActionType_Type:
		err = e.driver.Type(ctx, a.Text)
	case models.ActionKey:
		err = e.driver.PressKeys(ctx, a.Key)
	case models.ActionScroll:
		err = e.driver.Scroll(ctx, a.Amount)
	case models.ActionDrag:
		fx, fy := e.capturer.ToLogicalSafe(meta, a.Coords.X, a.Coords.Y)
		tx, ty := e.capturer.ToLogicalSafe(meta, a.ToCoords.X, a.ToCoords.Y)
		err = e.driver.Drag(ctx, fx, fy, tx, ty)
	case models.ActionWait:
		err = e.driver.Wait(ctx, a.Duration)
	default:
		err = fmt.Errorf("unknown action type %q", a.Type)
	}

	if err != nil {
		return models.ActionResult{
			Action:  a,
			Success: false,
			Message: fmt.Sprintf("%v: %v", coreerrors.ErrActionExecution, err),
		}
	}
	return models.ActionResult{Action: a, Success: true, Message: "ok"}
}

func validateCoords(a models.Action) error {
	switch a.Type {
	case models.ActionClick, models.ActionDoubleClick, models.ActionRightClick:
		if a.Coords == nil || !a.Coords.InRange() {
			return fmt.Errorf("%w: missing or out-of-range coords", coreerrors.ErrActionExecution)
		}
	case models.ActionDrag:
		if a.Coords == nil || !a.Coords.InRange() || a.ToCoords == nil || !a.ToCoords.InRange() {
			return fmt.Errorf("%w: missing or out-of-range drag coords", coreerrors.ErrActionExecution)
		}
	case models.ActionType_Type:
		if a.Text == "" {
			return fmt.Errorf("%w: empty text", coreerrors.ErrActionExecution)
		}
	case models.ActionKey:
		if !models.IsValidKey(a.Key) {
			return fmt.Errorf("%w: invalid key %q", coreerrors.ErrActionExecution, a.Key)
		}
	case models.ActionScroll:
		if a.Amount == 0 {
			return fmt.Errorf("%w: zero scroll amount", coreerrors.ErrActionExecution)
		}
	}
	return nil
}

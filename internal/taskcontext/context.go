// Package taskcontext implements the task context: the in-memory record
// of a single goal's progress that is injected into every decision and
// updated after every action.
package taskcontext

import (
	"fmt"
	"strings"
	"time"

	"github.com/deskagent/core/pkg/models"
)

const recentActionsCapacity = 10

// CompletedIntent is one append-only entry in the intent history.
type CompletedIntent struct {
	Intent  string
	Success bool
	Result  string
}

// RecentAction is one entry in the bounded recent-actions ring.
type RecentAction struct {
	Action  models.Action
	Success bool
	Result  string
}

// Context is the single-owner, per-goal record of intents, actions,
// counters, and error state. It is created by and destroyed with one
// executeGoal invocation — nothing outside the orchestrator mutates it.
type Context struct {
	GlobalGoal       string
	CurrentIntent    string
	CompletedIntents []CompletedIntent
	RecentActions    []RecentAction
	LastRoundSummary string
	LastError        string

	TotalIterations     int
	SuccessfulActions   int
	FailedActions       int
	ConsecutiveFailures int

	InRecoveryMode bool

	StartTime time.Time
	Deadline  time.Time
}

// New creates a Context for a fresh goal with the given wall-clock
// deadline (zero Time means no deadline).
func New(globalGoal string, deadline time.Time) *Context {
	return &Context{
		GlobalGoal: globalGoal,
		StartTime:  time.Now(),
		Deadline:   deadline,
	}
}

// StartIntent records the intent of the currently in-flight round.
func (c *Context) StartIntent(intent string) {
	c.CurrentIntent = intent
}

// CompleteIntent appends to the completed-intent history and updates the
// consecutive-failure counter.
func (c *Context) CompleteIntent(success bool, result string) {
	c.CompletedIntents = append(c.CompletedIntents, CompletedIntent{
		Intent:  c.CurrentIntent,
		Success: success,
		Result:  result,
	})
	if success {
		c.ConsecutiveFailures = 0
	} else {
		c.ConsecutiveFailures++
		c.LastError = result
	}
}

// RecordAction appends to the bounded recent-actions ring and updates the
// success/failure counters.
func (c *Context) RecordAction(action models.Action, success bool, result string) {
	c.RecentActions = append(c.RecentActions, RecentAction{Action: action, Success: success, Result: result})
	if len(c.RecentActions) > recentActionsCapacity {
		c.RecentActions = c.RecentActions[len(c.RecentActions)-recentActionsCapacity:]
	}
	if success {
		c.SuccessfulActions++
	} else {
		c.FailedActions++
	}
}

// RecordRoundActions builds LastRoundSummary from the executed bundle and
// a human-readable outcome string per action.
func (c *Context) RecordRoundActions(en *models.ExecuteNow, resultStrings []string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Round %q: ", en.Intent)
	for i, a := range en.Actions {
		if i >= len(resultStrings) {
			break
		}
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s -> %s", a.Describe(), resultStrings[i])
	}
	c.LastRoundSummary = b.String()
}

// IncrementIteration advances the iteration counter.
func (c *Context) IncrementIteration() {
	c.TotalIterations++
}

// ShouldEnterRecoveryMode reports whether consecutive failures have hit
// the given threshold, and sets InRecoveryMode accordingly.
func (c *Context) ShouldEnterRecoveryMode(threshold int) bool {
	c.InRecoveryMode = c.ConsecutiveFailures >= threshold
	return c.InRecoveryMode
}

// ContextInjection renders the Markdown block injected into the system
// prompt: global goal, iteration number, completed-intent summary (last
// <=5), last-round summary, and — in recovery mode — a warning quoting
// the last error.
func (c *Context) ContextInjection() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Task Context\n\n")
	fmt.Fprintf(&b, "- Goal: %s\n", c.GlobalGoal)
	fmt.Fprintf(&b, "- Iteration: %d\n", c.TotalIterations)

	if n := len(c.CompletedIntents); n > 0 {
		start := 0
		if n > 5 {
			start = n - 5
		}
		b.WriteString("- Recently completed intents:\n")
		for _, ci := range c.CompletedIntents[start:] {
			status := "ok"
			if !ci.Success {
				status = "failed"
			}
			fmt.Fprintf(&b, "  - %q (%s): %s\n", ci.Intent, status, ci.Result)
		}
	}

	if c.LastRoundSummary != "" {
		fmt.Fprintf(&b, "- Last round: %s\n", c.LastRoundSummary)
	}

	if c.InRecoveryMode {
		fmt.Fprintf(&b, "\n**Recovery mode**: %d consecutive failures. Try a different strategy. Last error: %s\n",
			c.ConsecutiveFailures, c.LastError)
	}

	return b.String()
}

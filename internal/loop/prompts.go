package loop

import (
	"fmt"
	"strings"

	"github.com/deskagent/core/internal/taskcontext"
)

// systemPrompt is the operator instruction set shared by every round.
const systemPrompt = `You are a desktop automation operator. Each round you receive a screenshot of the user's screen and must decide what to do next toward the user's goal.

The screenshot is annotated: a red cross marks the current mouse position; a green ring marks where the previous click landed. Use them to verify that your last actions had the effect you intended before planning new ones.

Coordinates are integers in [0,1000] on both axes, relative to the full screen: [0,0] is the top-left corner, [1000,1000] the bottom-right. Always derive coordinates from what you see in the current screenshot.

Available actions: click, doubleClick, rightClick (coords), type (text), key (enter/tab/escape/backspace/space/arrow_up/arrow_down/arrow_left/arrow_right), scroll (amount, negative scrolls up), drag (coords, to_coords), wait (duration in ms).

Batch up to 5 actions per round. Actions after a click, scroll, or enter key press will not execute: the screen is re-observed first. Put such actions last in the batch, or alone.

When the goal is visibly achieved, set is_goal_complete to true with a completion_summary and no execute_now. Otherwise set execute_now with a short intent naming what this batch is for.`

// buildSystemPrompt assembles the per-round system prompt: the operator
// instructions, the task context injection, the history digest when the
// session has been compacted, and any active skill knowledge.
func (o *Orchestrator) buildSystemPrompt(taskCtx *taskcontext.Context) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")
	b.WriteString(taskCtx.ContextInjection())

	o.mu.Lock()
	digest := o.historyDigest
	knowledge := o.skillKnowledge
	o.mu.Unlock()

	if digest != "" {
		b.WriteString("\n## Session history digest\n\n")
		b.WriteString(digest)
		b.WriteString("\n")
	}
	if knowledge != "" {
		b.WriteString("\n## Active Skill knowledge\n\n")
		b.WriteString(knowledge)
		b.WriteString("\n")
	}
	return b.String()
}

// buildRoundPrompt produces the user-turn text: an opening instruction
// on the first round, a verify-and-continue instruction afterwards, and
// an explicit strategy-change demand in recovery mode.
func (o *Orchestrator) buildRoundPrompt(taskCtx *taskcontext.Context) string {
	if taskCtx.InRecoveryMode {
		return fmt.Sprintf(
			"The current approach is not working (%d consecutive failures; last error: %s). "+
				"Analyze the screenshot and try a DIFFERENT strategy: a different UI path, different coordinates, or keyboard navigation instead of clicking.",
			taskCtx.ConsecutiveFailures, taskCtx.LastError)
	}
	if taskCtx.TotalIterations <= 1 || taskCtx.LastRoundSummary == "" {
		return "Analyze the screenshot and decide the first actions toward the goal."
	}
	return fmt.Sprintf(
		"Previous round: %s\nVerify on the screenshot that those actions had the intended effect, then continue or correct course.",
		taskCtx.LastRoundSummary)
}

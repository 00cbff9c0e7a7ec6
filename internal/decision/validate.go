// Package decision validates the model's DecisionBundle output against
// the rules in the decision-bundle contract before the orchestrator acts
// on it.
package decision

import (
	"fmt"

	"github.com/deskagent/core/pkg/models"
)

// ValidationError names a specific rule violation. Name is the precise,
// stable error code the contract mandates (e.g. "empty_thought"); tests
// match on it and it labels the validation-failure metric. Error()
// prefixes the prose with it, so the last-error text quoted by the
// recovery-mode prompt carries it as well.
type ValidationError struct {
	Name    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

func invalid(name, format string, args ...any) *ValidationError {
	return &ValidationError{Name: name, Message: fmt.Sprintf(format, args...)}
}

var validKeys = map[models.Key]bool{
	models.KeyEnter: true, models.KeyTab: true, models.KeyEscape: true,
	models.KeyBackspace: true, models.KeySpace: true,
	models.KeyArrowUp: true, models.KeyArrowDown: true,
	models.KeyArrowLeft: true, models.KeyArrowRight: true,
}

// Validate checks a DecisionBundle against every rule in the contract,
// returning the first violation found (rules are evaluated in contract
// order so error names are deterministic).
func Validate(b *models.DecisionBundle) error {
	if b.Thought == "" {
		return invalid("empty_thought", "thought must be non-empty")
	}
	if b.IsGoalComplete && b.CompletionSummary == "" {
		return invalid("missing_summary", "completion_summary required when is_goal_complete")
	}
	if !b.IsGoalComplete && b.ExecuteNow == nil {
		return invalid("missing_execute_now", "execute_now required when is_goal_complete is false")
	}
	if b.IsGoalComplete {
		// isGoalComplete XOR executeNow != nil: when complete, executeNow
		// must be absent.
		if b.ExecuteNow != nil {
			return invalid("missing_execute_now", "execute_now must be null when is_goal_complete")
		}
		return nil
	}

	en := b.ExecuteNow
	if len(en.Actions) == 0 {
		return invalid("no_actions", "execute_now.actions must be non-empty")
	}
	if len(en.Actions) > 5 {
		return invalid("too_many_actions", "execute_now.actions has %d entries, max 5", len(en.Actions))
	}
	for i, a := range en.Actions {
		if err := validateAction(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAction(i int, a models.Action) error {
	if a.Type == "" {
		return invalid("missing_action_type", "action %d has no type", i)
	}
	switch a.Type {
	case models.ActionClick, models.ActionDoubleClick, models.ActionRightClick:
		if a.Coords == nil || !a.Coords.InRange() {
			return invalid("bad_coords", "action %d (%s) requires coords in [0,1000]", i, a.Type)
		}
	case models.ActionType_Type:
		if a.Text == "" {
			return invalid("missing_text", "action %d (type) requires non-empty text", i)
		}
	case models.ActionKey:
		if a.Key == "" || !validKeys[a.Key] {
			return invalid("bad_key", "action %d (key) has invalid key %q", i, a.Key)
		}
	case models.ActionScroll:
		if a.Amount == 0 {
			return invalid("missing_amount", "action %d (scroll) requires non-zero amount", i)
		}
	case models.ActionDrag:
		if a.Coords == nil || !a.Coords.InRange() || a.ToCoords == nil || !a.ToCoords.InRange() {
			return invalid("bad_drag", "action %d (drag) requires coords and to_coords in [0,1000]", i)
		}
	case models.ActionWait:
		// duration has no required-field rule in the contract.
	default:
		return invalid("missing_action_type", "action %d has unknown type %q", i, a.Type)
	}
	return nil
}

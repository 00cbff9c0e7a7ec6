package decision

import (
	"testing"

	"github.com/deskagent/core/pkg/models"
)

func TestValidate_EmptyThought(t *testing.T) {
	b := &models.DecisionBundle{Thought: "", IsGoalComplete: true, CompletionSummary: "done"}
	err := Validate(b)
	requireCode(t, err, "empty_thought")
}

func TestValidate_MissingSummary(t *testing.T) {
	b := &models.DecisionBundle{Thought: "x", IsGoalComplete: true}
	requireCode(t, Validate(b), "missing_summary")
}

func TestValidate_MissingExecuteNow(t *testing.T) {
	b := &models.DecisionBundle{Thought: "x", IsGoalComplete: false}
	requireCode(t, Validate(b), "missing_execute_now")
}

func TestValidate_TooManyActions(t *testing.T) {
	actions := make([]models.Action, 6)
	for i := range actions {
		actions[i] = models.Action{Type: models.ActionWait, Duration: 10}
	}
	b := &models.DecisionBundle{
		Thought:    "x",
		ExecuteNow: &models.ExecuteNow{Intent: "i", Actions: actions},
	}
	requireCode(t, Validate(b), "too_many_actions")
}

func TestValidate_NoActions(t *testing.T) {
	b := &models.DecisionBundle{
		Thought:    "x",
		ExecuteNow: &models.ExecuteNow{Intent: "i", Actions: nil},
	}
	requireCode(t, Validate(b), "no_actions")
}

func TestValidate_BadCoords(t *testing.T) {
	b := &models.DecisionBundle{
		Thought: "x",
		ExecuteNow: &models.ExecuteNow{Intent: "i", Actions: []models.Action{
			{Type: models.ActionClick, Coords: &models.Coord{X: 1001, Y: 0}},
		}},
	}
	requireCode(t, Validate(b), "bad_coords")
}

func TestValidate_MissingText(t *testing.T) {
	b := &models.DecisionBundle{
		Thought: "x",
		ExecuteNow: &models.ExecuteNow{Intent: "i", Actions: []models.Action{
			{Type: models.ActionType_Type, Text: ""},
		}},
	}
	requireCode(t, Validate(b), "missing_text")
}

func TestValidate_BadKey(t *testing.T) {
	b := &models.DecisionBundle{
		Thought: "x",
		ExecuteNow: &models.ExecuteNow{Intent: "i", Actions: []models.Action{
			{Type: models.ActionKey, Key: "ctrl_z"},
		}},
	}
	requireCode(t, Validate(b), "bad_key")
}

func TestValidate_MissingAmount(t *testing.T) {
	b := &models.DecisionBundle{
		Thought: "x",
		ExecuteNow: &models.ExecuteNow{Intent: "i", Actions: []models.Action{
			{Type: models.ActionScroll, Amount: 0},
		}},
	}
	requireCode(t, Validate(b), "missing_amount")
}

func TestValidate_BadDrag(t *testing.T) {
	b := &models.DecisionBundle{
		Thought: "x",
		ExecuteNow: &models.ExecuteNow{Intent: "i", Actions: []models.Action{
			{Type: models.ActionDrag, Coords: &models.Coord{X: 1, Y: 1}},
		}},
	}
	requireCode(t, Validate(b), "bad_drag")
}

func TestValidate_ValidCompletionBundle(t *testing.T) {
	b := &models.DecisionBundle{
		Thought:           "done",
		IsGoalComplete:    true,
		CompletionSummary: "Already open",
	}
	if err := Validate(b); err != nil {
		t.Fatalf("expected valid bundle, got %v", err)
	}
}

func TestValidate_ValidExecuteBundle(t *testing.T) {
	b := &models.DecisionBundle{
		Thought: "filling form",
		ExecuteNow: &models.ExecuteNow{
			Intent: "Fill login",
			Actions: []models.Action{
				{Type: models.ActionType_Type, Text: "admin"},
				{Type: models.ActionKey, Key: models.KeyTab},
				{Type: models.ActionType_Type, Text: "secret"},
			},
		},
	}
	if err := Validate(b); err != nil {
		t.Fatalf("expected valid bundle, got %v", err)
	}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected validation error %q, got nil", code)
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if ve.Name != code {
		t.Fatalf("expected code %q, got %q", code, ve.Name)
	}
}

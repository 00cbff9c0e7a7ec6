package models

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ActionType identifies the tagged variant of an Action.
type ActionType string

const (
	ActionClick       ActionType = "click"
	ActionDoubleClick ActionType = "doubleClick"
	ActionRightClick  ActionType = "rightClick"
	ActionType_Type   ActionType = "type"
	ActionKey         ActionType = "key"
	ActionScroll      ActionType = "scroll"
	ActionDrag        ActionType = "drag"
	ActionWait        ActionType = "wait"
)

// Key is the enumerated set of key-action keycodes.
type Key string

const (
	KeyEnter     Key = "enter"
	KeyTab       Key = "tab"
	KeyEscape    Key = "escape"
	KeyBackspace Key = "backspace"
	KeySpace     Key = "space"
	KeyArrowUp   Key = "arrow_up"
	KeyArrowDown Key = "arrow_down"
	KeyArrowLeft Key = "arrow_left"
	KeyArrowRight Key = "arrow_right"
)

var validKeys = map[Key]bool{
	KeyEnter: true, KeyTab: true, KeyEscape: true, KeyBackspace: true,
	KeySpace: true, KeyArrowUp: true, KeyArrowDown: true, KeyArrowLeft: true, KeyArrowRight: true,
}

// IsValidKey reports whether k is a member of the key enum.
func IsValidKey(k Key) bool {
	return validKeys[k]
}

// Coord is a normalized [0,1000] coordinate pair. On the wire it is a
// two-element integer array, [x, y].
type Coord struct {
	X int `json:"-"`
	Y int `json:"-"`
}

// MarshalJSON encodes the pair as [x, y].
func (c Coord) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{c.X, c.Y})
}

// UnmarshalJSON decodes a [x, y] pair.
func (c *Coord) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	c.X, c.Y = pair[0], pair[1]
	return nil
}

// JSONSchema describes the wire shape to the schema generator.
func (Coord) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:  "array",
		Items: &jsonschema.Schema{Type: "integer"},
	}
}

// InRange reports whether both axes lie in [0,1000].
func (c Coord) InRange() bool {
	return c.X >= 0 && c.X <= 1000 && c.Y >= 0 && c.Y <= 1000
}

// Action is a tagged-variant OS input instruction. Exactly the fields
// relevant to Type are populated; the rest are zero. Wire field names
// (coords, to_coords, text, key, amount, duration) are normative.
type Action struct {
	Type     ActionType `json:"type"`
	Coords   *Coord     `json:"coords,omitempty"`
	ToCoords *Coord     `json:"to_coords,omitempty"`
	Text     string     `json:"text,omitempty"`
	Key      Key        `json:"key,omitempty"`
	Amount   int        `json:"amount,omitempty"`
	Duration int        `json:"duration,omitempty"`
}

// IsBoundary reports whether this action forces early batch termination
// and a fresh observation: click, doubleClick, rightClick, scroll, or
// key=enter.
func (a Action) IsBoundary() bool {
	switch a.Type {
	case ActionClick, ActionDoubleClick, ActionRightClick, ActionScroll:
		return true
	case ActionKey:
		return a.Key == KeyEnter
	default:
		return false
	}
}

// Describe renders a short human-readable description of the action, used
// to build TaskContext's round summaries and event payloads.
func (a Action) Describe() string {
	switch a.Type {
	case ActionClick, ActionDoubleClick, ActionRightClick:
		if a.Coords != nil {
			return fmt.Sprintf("%s(%d,%d)", a.Type, a.Coords.X, a.Coords.Y)
		}
		return string(a.Type)
	case ActionType_Type:
		return fmt.Sprintf("type(%q)", a.Text)
	case ActionKey:
		return fmt.Sprintf("key(%s)", a.Key)
	case ActionScroll:
		return fmt.Sprintf("scroll(%d)", a.Amount)
	case ActionDrag:
		if a.Coords != nil && a.ToCoords != nil {
			return fmt.Sprintf("drag(%d,%d -> %d,%d)", a.Coords.X, a.Coords.Y, a.ToCoords.X, a.ToCoords.Y)
		}
		return "drag"
	case ActionWait:
		return fmt.Sprintf("wait(%dms)", a.Duration)
	default:
		return string(a.Type)
	}
}

package models

// EventKind enumerates the normative event taxonomy of the event bus.
// The tts_* kinds are relayed verbatim from external collaborators; the
// core never produces them itself.
type EventKind string

const (
	EventGoalStarted      EventKind = "goal_started"
	EventIterationStarted EventKind = "iteration_started"
	EventRoundStarted     EventKind = "round_started"
	EventActionExecuted   EventKind = "action_executed"
	EventActionFailed     EventKind = "action_failed"
	EventRoundFinished    EventKind = "round_finished"
	EventGoalCompleted    EventKind = "goal_completed"
	EventGoalFailed       EventKind = "goal_failed"
	EventGoalInterrupted  EventKind = "goal_interrupted"
	EventTTSAudio         EventKind = "tts_audio"
	EventTTSSkip          EventKind = "tts_skip"
	EventTTSError         EventKind = "tts_error"
)

// Event is the in-process representation of a bus message. The wire
// envelope ({type, data, timestamp}) is produced by the transport layer
// from this struct; it is not part of the core's normative surface.
type Event struct {
	Kind      EventKind `json:"type"`
	Data      any       `json:"data"`
	TimestampMS int64   `json:"timestamp"`
}

// RoundStartedPayload is the data payload of an EventRoundStarted event.
type RoundStartedPayload struct {
	Intent    string `json:"intent"`
	Iteration int    `json:"iteration"`
}

// ActionExecutedPayload is the data payload of EventActionExecuted /
// EventActionFailed events.
type ActionExecutedPayload struct {
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// GoalCompletedPayload is the data payload of an EventGoalCompleted event.
type GoalCompletedPayload struct {
	Summary string `json:"summary"`
}

// GoalEndedPayload is the data payload of EventGoalFailed / EventGoalInterrupted.
type GoalEndedPayload struct {
	Reason string `json:"reason"`
}

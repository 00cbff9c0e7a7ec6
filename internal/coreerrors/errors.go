// Package coreerrors defines the error taxonomy shared by the capture,
// executor, and decision-loop packages. The taxonomy is expressed as
// sentinel errors plus %w-wrapping, not as a type hierarchy: callers
// distinguish kinds with errors.Is, matching the classification style
// used elsewhere in this codebase's provider error handling.
package coreerrors

import "errors"

var (
	// ErrTransientPerception means a screenshot could not be captured.
	// Recoverable: increments the consecutive-failure counter and retries
	// on the next iteration.
	ErrTransientPerception = errors.New("transient perception error")

	// ErrModelParse means the model's response could not be parsed as a
	// DecisionBundle (including when it is not valid JSON at all).
	ErrModelParse = errors.New("model parse error")

	// ErrModelValidate means the parsed DecisionBundle failed a
	// validation rule.
	ErrModelValidate = errors.New("model validate error")

	// ErrActionExecution means a single action failed during execution.
	// Not fatal: recorded in BatchResult and forwarded into TaskContext.
	ErrActionExecution = errors.New("action execution error")

	// ErrCancellationRequested surfaces when interrupt() was observed at
	// an iteration or batch boundary.
	ErrCancellationRequested = errors.New("cancellation requested")

	// ErrBudgetExhausted covers MaxIterationsReached and
	// ConsecutiveFailureLimit; terminal.
	ErrBudgetExhausted = errors.New("budget exhausted")

	// ErrConfiguration means the loop cannot start at all: missing model
	// credentials, unusable skills directory, etc.
	ErrConfiguration = errors.New("configuration error")

	// ErrPersistence means a session store operation failed. Logged,
	// never propagated into the decision loop's control flow.
	ErrPersistence = errors.New("persistence error")
)

// BudgetReason distinguishes the two ways a budget can be exhausted.
type BudgetReason string

const (
	MaxIterationsReached    BudgetReason = "max iterations reached"
	ConsecutiveFailureLimit BudgetReason = "consecutive failure limit"
)

package agent

import "errors"

// Fatal run errors. They are wrapped with context and surface to the caller
// of Run unchanged in kind.
var (
	// ErrUnknownRoute is returned when the router answers with a label
	// outside the closed route set.
	ErrUnknownRoute = errors.New("agent: unknown route")

	// ErrContractViolation is returned when a service returns an outcome
	// shape it is not allowed to return, or a response that cannot be parsed.
	ErrContractViolation = errors.New("agent: service contract violation")

	// ErrStepLimit is returned when a service asks for more explore round
	// trips than the configured ceiling allows.
	ErrStepLimit = errors.New("agent: step limit exceeded")
)

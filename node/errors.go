package node

import "fmt"

// ErrFormatFailed reports a Format node unable to render the configured
// output shape from the upstream model response.
type ErrFormatFailed struct {
	NodeID string
	Cause  error
}

func (e *ErrFormatFailed) Error() string {
	return fmt.Sprintf("node: FORMAT_FAILED at %q: %v", e.NodeID, e.Cause)
}

func (e *ErrFormatFailed) Unwrap() error { return e.Cause }

// ErrModelCallFailed wraps a failure ModelInvoke hits while resolving
// the model, assembling the prompt, estimating the call, or calling the
// provider (the latter after retries are exhausted). Budget refusals are
// returned as the budget package's own error types, not wrapped here.
type ErrModelCallFailed struct {
	NodeID string
	Cause  error
}

func (e *ErrModelCallFailed) Error() string {
	return fmt.Sprintf("node: MODEL_CALL_FAILED at %q: %v", e.NodeID, e.Cause)
}

func (e *ErrModelCallFailed) Unwrap() error { return e.Cause }

// ErrInvalidConfig reports a node whose CurrentNodeConfig could not be
// decoded into its expected shape.
type ErrInvalidConfig struct {
	NodeID string
	Cause  error
}

func (e *ErrInvalidConfig) Error() string {
	return fmt.Sprintf("node: invalid config at %q: %v", e.NodeID, e.Cause)
}

func (e *ErrInvalidConfig) Unwrap() error { return e.Cause }

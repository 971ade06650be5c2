package manager

// modelNotFoundError signals a model name absent from the registry.
type modelNotFoundError struct{ name string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.name }

// ErrModelNotFound constructs a modelNotFoundError.
func ErrModelNotFound(name string) error { return modelNotFoundError{name: name} }

// IsModelNotFound reports whether err indicates an unregistered model.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}

// placementError signals that no GPU can host the model, even after
// eviction. Retryable from the caller's point of view.
type placementError struct{ name string }

func (e placementError) Error() string { return "no GPU can host model " + e.name }

// ErrPlacement constructs a placementError.
func ErrPlacement(name string) error { return placementError{name: name} }

// IsPlacement reports whether err indicates a failed placement (503).
func IsPlacement(err error) bool {
	_, ok := err.(placementError)
	return ok
}

// startTimeoutError signals that the backend did not reach ready within
// the start timeout. The instance is left Stopped for a future attempt.
type startTimeoutError struct{ name string }

func (e startTimeoutError) Error() string { return "backend start timed out for model " + e.name }

// ErrStartTimeout constructs a startTimeoutError.
func ErrStartTimeout(name string) error { return startTimeoutError{name: name} }

// IsStartTimeout reports whether err indicates a start timeout (503).
func IsStartTimeout(err error) bool {
	_, ok := err.(startTimeoutError)
	return ok
}

// startFailedError wraps a launch or early-exit failure during start.
type startFailedError struct {
	name  string
	cause error
}

func (e startFailedError) Error() string {
	return "backend start failed for model " + e.name + ": " + e.cause.Error()
}

func (e startFailedError) Unwrap() error { return e.cause }

// ErrStartFailed constructs a startFailedError wrapping cause.
func ErrStartFailed(name string, cause error) error {
	return startFailedError{name: name, cause: cause}
}

// IsStartFailed reports whether err indicates a failed backend launch.
func IsStartFailed(err error) bool {
	_, ok := err.(startFailedError)
	return ok
}

// crashedError signals the instance crashed and is awaiting an automatic
// restart; the current request is not retried by the caller.
type crashedError struct{ name string }

func (e crashedError) Error() string { return "backend for model " + e.name + " crashed, restart pending" }

// ErrCrashed constructs a crashedError.
func ErrCrashed(name string) error { return crashedError{name: name} }

// IsCrashed reports whether err indicates a crashed backend (503).
func IsCrashed(err error) bool {
	_, ok := err.(crashedError)
	return ok
}

// permanentFailureError signals the restart budget is exhausted; the model
// stays unavailable until explicitly reset.
type permanentFailureError struct{ name string }

func (e permanentFailureError) Error() string {
	return "model " + e.name + " permanently failed; reset required"
}

// ErrPermanentFailure constructs a permanentFailureError.
func ErrPermanentFailure(name string) error { return permanentFailureError{name: name} }

// IsPermanentFailure reports whether err indicates an exhausted restart budget.
func IsPermanentFailure(err error) bool {
	_, ok := err.(permanentFailureError)
	return ok
}

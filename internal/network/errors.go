package network

import "fmt"

// ValidationError reports a rejected structural mutation. The network is
// left unmodified when one is returned.
type ValidationError struct {
	Invariant string
	Detail    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Invariant, e.Detail)
}

func invalid(invariant string, format string, args ...any) *ValidationError {
	return &ValidationError{Invariant: invariant, Detail: fmt.Sprintf(format, args...)}
}

package newsroom

import "fmt"

// GenerationError wraps a failed generator invocation. Err is a transport
// error, a *providers.StatusError, providers.ErrNotConfigured or a
// *story.ParseError.
type GenerationError struct {
	GeneratorID string
	Err         error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generator %s: %v", e.GeneratorID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

package replay

import "fmt"

// GaveUpError is returned by Submit when a closure has raised a retry signal
// more times than the configured maximum attempts allow (spec.md §4.4/§7).
type GaveUpError struct {
	MaxAttempts int
}

func (e *GaveUpError) Error() string {
	return fmt.Sprintf("gave up after %d attempts", e.MaxAttempts)
}

package dom

import (
	"errors"
	"fmt"
	"time"
)

// ErrElementNotFound indicates the locator exhausted all strategies and the
// wait budget without resolving a visible element.
var ErrElementNotFound = errors.New("element not found")

// NotFoundError carries the target and budget that were exhausted. It unwraps
// to ErrElementNotFound so callers can match with errors.Is.
type NotFoundError struct {
	Target   string
	Attempts int
	Budget   time.Duration
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("element not found: %q after %d attempts within %v", e.Target, e.Attempts, e.Budget)
}

func (e *NotFoundError) Unwrap() error { return ErrElementNotFound }

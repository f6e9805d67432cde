package steps

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStepDisabled means a precondition control was resolved but reports
	// itself inactive; clicking it would be a silent no-op.
	ErrStepDisabled = errors.New("step control is disabled")
	// ErrNavigationTimeout means a post-click settle check saw no DOM change
	// within the grace window. Advisory only, never fatal.
	ErrNavigationTimeout = errors.New("navigation not confirmed")
	// ErrImageFetch marks a single image URL that could not be retrieved.
	// Per-image and non-fatal.
	ErrImageFetch = errors.New("image fetch failed")
	// ErrPublishUnconfirmed means the publish click was issued but neither
	// success phrase nor URL pattern was observed. Recorded, not fatal.
	ErrPublishUnconfirmed = errors.New("publish not confirmed")
)

// DisabledError reports an inactive control together with the upstream
// sections that appear unresolved, inferred from aria-invalid markers.
type DisabledError struct {
	Control string
	// Invalid names the labelled sections flagged invalid at check time.
	Invalid []string
}

func (e *DisabledError) Error() string {
	if len(e.Invalid) == 0 {
		return fmt.Sprintf("%q is disabled", e.Control)
	}
	return fmt.Sprintf("%q is disabled; unresolved fields: %s",
		e.Control, strings.Join(e.Invalid, ", "))
}

func (e *DisabledError) Unwrap() error { return ErrStepDisabled }

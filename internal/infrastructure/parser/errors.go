package parser

import (
	"errors"
	"fmt"

	"NewsDigest/internal/resilience"
)

var (
	// ErrInvalidElement reports a page that lacks an element the scanner depends on.
	ErrInvalidElement = errors.New("invalid page element")
	// ErrTooManyMisses aborts an ID scan after repeated failed item lookups.
	ErrTooManyMisses = errors.New("too many consecutive item misses")
)

// invalidElement is never retried: a changed page layout will not fix itself.
func invalidElement(format string, args ...any) error {
	return resilience.Permanent(fmt.Errorf("%w: %s", ErrInvalidElement, fmt.Sprintf(format, args...)))
}

package objcore

import (
	"errors"
	"fmt"
)

// ErrResolution is the sentinel wrapped by every ResolutionError
var ErrResolution = errors.New("objcore: cannot resolve discriminator")

// ResolutionError reports a discriminator that does not name a buildable type
// under the requested root.
type ResolutionError struct {
	Name   string
	Root   string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("objcore: %q is not a subtype of %s: %s", e.Name, e.Root, e.Reason)
}

func (e *ResolutionError) Unwrap() error {
	return ErrResolution
}

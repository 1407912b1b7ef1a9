package detector

import "errors"

// ErrInvalidInput is returned when a sample cannot be applied: malformed
// coordinates or a timestamp earlier than the last accepted one. The
// detector state is left untouched.
var ErrInvalidInput = errors.New("invalid detector input")

package domain

import "errors"

// ErrMissingField is returned when a run config omits a required field.
var ErrMissingField = errors.New("missing required field")

// ErrCancelled is returned when the host cancels the run during the
// threshold negotiation. The controller treats it as a fatal stage failure.
var ErrCancelled = errors.New("cancelled by user")

// ErrRunNotFound is returned by run stores for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

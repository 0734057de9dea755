package bucket

import "errors"

// ErrStoreUnavailable is returned when the shared store could not be
// reached or timed out. Callers should treat this as a fail-open signal
// per the failure-mode policy, never as a denial.
var ErrStoreUnavailable = errors.New("bucket: store unavailable")

// ErrUnexpectedResult is returned when the store's script returned a
// value this client doesn't know how to interpret.
var ErrUnexpectedResult = errors.New("bucket: unexpected script result")

package channel

import "errors"

// Standard errors returned by Channel operations.
var (
	ErrNotRegistered = errors.New("channel: not yet registered on a reactor")
)

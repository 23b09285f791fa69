package pipeline

import "errors"

// Standard errors returned by Pipeline and Context operations.
var (
	ErrNoOutboundHandler  = errors.New("pipeline: no outbound handler reached (missing transport at head)")
	ErrHandlerAlreadyAdded = errors.New("pipeline: handler already added under that name")
	ErrNameInUse           = errors.New("pipeline: context name already in use")
	ErrNotFound            = errors.New("pipeline: no context with that name")
	ErrRemoveSentinel      = errors.New("pipeline: head and tail cannot be removed")
	ErrNotSharable         = errors.New("pipeline: handler instance already added elsewhere and is not sharable")
)

// Sharable is implemented by handlers safe to add to more than one pipeline
// context concurrently (spec §4.4(c)). A handler that does not implement
// Sharable may only be added once.
type Sharable interface {
	IsSharable() bool
}

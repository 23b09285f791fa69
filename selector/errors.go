package selector

import "errors"

// Standard errors returned by Selector implementations.
var (
	ErrSelectorClosed    = errors.New("selector: closed")
	ErrAlreadyRegistered = errors.New("selector: fd already registered")
	ErrNotRegistered     = errors.New("selector: fd not registered")
)

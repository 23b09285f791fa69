package bootstrap

import "errors"

// Configuration errors reported synchronously by validate() (spec §7
// "configuration ... reported synchronously at validate() or on the
// offending setter").
var (
	ErrChildInitializerRequired = errors.New("bootstrap: child initializer is required")
	ErrBindAddressRequired      = errors.New("bootstrap: bind address is required")
	ErrUnexpectedAcceptPayload  = errors.New("bootstrap: acceptor received a non-channel payload")
)

package transport

import "errors"

// Standard errors returned by transport operations.
var (
	ErrNotSupported     = errors.New("transport: operation not supported by this transport")
	ErrUnsupportedMessage = errors.New("transport: write message must be []byte")
)

package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrInboundToken = errors.New("invalid inbound token")
)

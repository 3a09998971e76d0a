package domain

import "errors"

// Error classes shared between sources and the sync driver. Source errors
// match these through errors.Is.
var (
	ErrRetriable     = errors.New("retriable api error")
	ErrFatal         = errors.New("fatal api error")
	ErrTokenExchange = errors.New("token exchange failed")
)

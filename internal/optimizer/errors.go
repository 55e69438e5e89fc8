package optimizer

import "errors"

// Hard failures. Malformed inputs abort the computation; every STOP outcome is
// returned as a structured result instead.
var (
	ErrInvalidHorizon    = errors.New("invalid horizon")
	ErrInvalidVolatility = errors.New("invalid volatility")
	ErrInvalidPrice      = errors.New("invalid spot price")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidOptions    = errors.New("invalid options")
)

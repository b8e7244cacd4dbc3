package provider

import "errors"

var (
	ErrInvalidTransition = errors.New("provider: invalid state transition")
	ErrNoActiveSession   = errors.New("provider: no active session")
	ErrAborted           = errors.New("provider: operation aborted")
	ErrInvalidArguments  = errors.New("provider: invalid arguments")
)

package events

import "errors"

var (
	ErrBusShutDown = errors.New("event bus has been shut down")
)

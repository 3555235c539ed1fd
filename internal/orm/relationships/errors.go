package relationships

import "errors"

var (
	// ErrMaxDepthExceeded is returned when nested population goes too deep
	ErrMaxDepthExceeded = errors.New("maximum relationship depth exceeded")

	// ErrUnknownTarget is returned when a relationship targets an unregistered record type
	ErrUnknownTarget = errors.New("unknown relationship target")
)

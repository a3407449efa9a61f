package kafka

import "errors"

// ErrClosed is returned when publishing through a closed publisher.
var ErrClosed = errors.New("kafka publisher closed")

package device

import "errors"

var (
	// ErrNotFound indicates a device was not found
	ErrNotFound = errors.New("device not found")

	// ErrChannelNotFound indicates a channel address is unknown
	ErrChannelNotFound = errors.New("channel not found")

	// ErrParamsetNotFound indicates a channel does not expose a paramset key
	ErrParamsetNotFound = errors.New("paramset not found")
)

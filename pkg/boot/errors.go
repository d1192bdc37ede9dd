package boot

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTransfer indicates the host sent a zero-length file.
	ErrEmptyTransfer = errors.New("empty transfer")
	// ErrTransferFailed indicates the transport gave up on a file without
	// the link itself breaking.
	ErrTransferFailed = errors.New("transfer failed")
)

// OverflowError indicates an incoming file does not fit the destination region.
type OverflowError struct {
	Size     int
	Capacity int
}

// Error implements error.
func (e *OverflowError) Error() string {
	return fmt.Sprintf("file size %d exceeds region capacity %d", e.Size, e.Capacity)
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements error.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

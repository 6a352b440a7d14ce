package device

import (
	"errors"
	"fmt"
	"time"
)

// ErrChannelNotOpen is returned when a command is attempted while the serial
// stream is closed.
var ErrChannelNotOpen = errors.New("device channel is not open")

// CommandTimeoutError is returned when no matching response arrived within
// the command window. LastMessage carries the last raw line seen on the
// stream, which is usually the fastest way to diagnose a confused device.
type CommandTimeoutError struct {
	Command     string
	LastMessage string
	Window      time.Duration
}

func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("command %q timed out after %s (last message: %q)",
		e.Command, e.Window, e.LastMessage)
}

// DeviceError is returned when the device answered with an error-prefixed
// line instead of the expected acknowledgement.
type DeviceError struct {
	Command string
	Line    string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device rejected command %q: %s", e.Command, e.Line)
}

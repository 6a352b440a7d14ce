package device

import (
	"context"
	"fmt"
	"strings"
)

// Command tokens understood by the controller firmware. Each command is a
// single ASCII token optionally followed by comma-separated arguments.
const (
	cmdOn            = "N" // N<ch>            -> OK;ON
	cmdOff           = "F" // F<ch>            -> OK;OFF
	cmdBrightness    = "B" // B<ch>,<level>    -> OK;BRIGHT
	cmdDailyTimes    = "T" // T<ch>,<hhmm*4>   -> OK;TIME
	cmdClear         = "C" // C                -> OK;CLEAR
	cmdSensorEnable  = "E" // E<ch>            -> OK;SENSOR
	cmdSensorDisable = "D" // D<ch>            -> OK;SENSOR
	cmdStatus        = "Q" // Q                -> STATUS;...
)

// TurnOn switches a channel on.
func (c *Channel) TurnOn(ctx context.Context, channel int) error {
	_, err := c.SendCommand(ctx, fmt.Sprintf("%s%d", cmdOn, channel), PrefixAck+"ON")
	return err
}

// TurnOff switches a channel off.
func (c *Channel) TurnOff(ctx context.Context, channel int) error {
	_, err := c.SendCommand(ctx, fmt.Sprintf("%s%d", cmdOff, channel), PrefixAck+"OFF")
	return err
}

// SetBrightness sets a channel's output level (0-255).
func (c *Channel) SetBrightness(ctx context.Context, channel, level int) error {
	_, err := c.SendCommand(ctx, fmt.Sprintf("%s%d,%d", cmdBrightness, channel, level), PrefixAck+"BRIGHT")
	return err
}

// SetDailyTimes programs the device-side daily ON/OFF times for a channel.
// The device mirror is best-effort; the backend scheduler remains
// authoritative.
func (c *Channel) SetDailyTimes(ctx context.Context, channel, onHour, onMinute, offHour, offMinute int) error {
	cmd := fmt.Sprintf("%s%d,%d,%d,%d,%d", cmdDailyTimes, channel, onHour, onMinute, offHour, offMinute)
	_, err := c.SendCommand(ctx, cmd, PrefixAck+"TIME")
	return err
}

// ClearSchedules wipes all device-side schedules.
func (c *Channel) ClearSchedules(ctx context.Context) error {
	_, err := c.SendCommand(ctx, cmdClear, PrefixAck+"CLEAR")
	return err
}

// SetSensorEnabled enables or disables the motion sensor input for a channel.
func (c *Channel) SetSensorEnabled(ctx context.Context, channel int, enabled bool) error {
	token := cmdSensorDisable
	if enabled {
		token = cmdSensorEnable
	}
	_, err := c.SendCommand(ctx, fmt.Sprintf("%s%d", token, channel), PrefixAck+"SENSOR")
	return err
}

// RequestStatus queries the device for the live per-channel output levels.
func (c *Channel) RequestStatus(ctx context.Context) (Status, error) {
	line, err := c.SendCommand(ctx, cmdStatus, PrefixStatus)
	if err != nil {
		return Status{}, err
	}
	status, ok := Parse(line).(Status)
	if !ok {
		return Status{}, fmt.Errorf("unexpected status line %q", line)
	}
	return status, nil
}

// Apply performs one ON/OFF action. It is the single entry point the action
// executor uses.
func (c *Channel) Apply(ctx context.Context, channel int, on bool) error {
	if on {
		return c.TurnOn(ctx, channel)
	}
	return c.TurnOff(ctx, channel)
}

// FormatLevels renders a status for logs, e.g. "0,255,0".
func FormatLevels(s Status) string {
	parts := make([]string, len(s.Levels))
	for i, v := range s.Levels {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ",")
}

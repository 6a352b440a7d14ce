package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Action is the direction of a scheduled channel switch.
type Action string

const (
	ActionOn  Action = "on"
	ActionOff Action = "off"
)

// On reports whether the action switches the channel on.
func (a Action) On() bool { return a == ActionOn }

// ParseAction validates an action string.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(s)) {
	case ActionOn:
		return ActionOn, nil
	case ActionOff:
		return ActionOff, nil
	}
	return "", fmt.Errorf("invalid action %q", s)
}

// JobKey deterministically identifies one scheduled action. Re-submitting a
// job with the same key replaces any pending job for that key.
type JobKey struct {
	ChannelID  int
	ScheduleID int64
	Action     Action
}

// String renders the key in its wire form, e.g. "ch:3:sched:12:on".
func (k JobKey) String() string {
	return fmt.Sprintf("ch:%d:sched:%d:%s", k.ChannelID, k.ScheduleID, k.Action)
}

// ParseJobKey parses the wire form produced by JobKey.String.
func ParseJobKey(s string) (JobKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 || parts[0] != "ch" || parts[2] != "sched" {
		return JobKey{}, fmt.Errorf("malformed job key %q", s)
	}
	channelID, err := strconv.Atoi(parts[1])
	if err != nil {
		return JobKey{}, fmt.Errorf("malformed job key %q: bad channel id", s)
	}
	scheduleID, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return JobKey{}, fmt.Errorf("malformed job key %q: bad schedule id", s)
	}
	action, err := ParseAction(parts[4])
	if err != nil {
		return JobKey{}, fmt.Errorf("malformed job key %q: %w", s, err)
	}
	return JobKey{ChannelID: channelID, ScheduleID: scheduleID, Action: action}, nil
}

// Job is one scheduled future execution of an ON or OFF action.
type Job struct {
	Key    JobKey
	Target time.Time
}

// Job states as stored in the durable backend.
const (
	StatePending = "pending"
	StateActive  = "active"
)

// PendingJob is the diagnostic view of a not-yet-executed job.
type PendingJob struct {
	Key    JobKey    `json:"jobKey"`
	Target time.Time `json:"targetTimestamp"`
	State  string    `json:"state"`
}

// JobHandle is returned to callers that submit a job.
type JobHandle struct {
	ID     string    `json:"id"`
	Key    string    `json:"jobKey"`
	Target time.Time `json:"targetTimestamp"`
}

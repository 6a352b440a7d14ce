package device

import (
	"strconv"
	"strings"
)

// Well-known line prefixes of the device's text protocol.
const (
	PrefixAck    = "OK;"
	PrefixError  = "ERR;"
	PrefixStatus = "STATUS;"
)

// Response is one parsed line from the device. Matching on the concrete type
// is exhaustive over the known protocol variants; anything else is Unknown.
type Response interface {
	isResponse()
}

// Ack is an acknowledgement line, e.g. "OK;ON".
type Ack struct {
	Detail string
}

// ErrorLine is a device-reported error, e.g. "ERR;BADCH".
type ErrorLine struct {
	Code string
}

// Status is a structured status line, e.g. "STATUS;0,255,0,128".
// Levels holds one brightness value per channel.
type Status struct {
	Levels []int
}

// Unknown is any line not matching a known prefix. The device emits free-text
// diagnostics on boot; they are carried for logging only.
type Unknown struct {
	Line string
}

func (Ack) isResponse()       {}
func (ErrorLine) isResponse() {}
func (Status) isResponse()    {}
func (Unknown) isResponse()   {}

// Parse classifies one raw line into a protocol variant.
func Parse(line string) Response {
	line = strings.TrimRight(line, "\r")
	switch {
	case strings.HasPrefix(line, PrefixError):
		return ErrorLine{Code: strings.TrimPrefix(line, PrefixError)}
	case strings.HasPrefix(line, PrefixStatus):
		return parseStatus(strings.TrimPrefix(line, PrefixStatus))
	case strings.HasPrefix(line, PrefixAck):
		return Ack{Detail: strings.TrimPrefix(line, PrefixAck)}
	default:
		return Unknown{Line: line}
	}
}

func parseStatus(body string) Status {
	if body == "" {
		return Status{}
	}
	fields := strings.Split(body, ",")
	levels := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			// A malformed field zeroes that channel rather than dropping
			// the whole line.
			v = 0
		}
		levels = append(levels, v)
	}
	return Status{Levels: levels}
}

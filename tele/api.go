package tele

import "fmt"

// State is the one byte station status retained by the broker. The MQTT will
// is StateDisconnected so operators see a dead station without any station
// code running.
type State byte

const (
	StateInvalid State = iota
	StateBoot
	StateOnline
	StateProblem
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateBoot:
		return "boot"
	case StateOnline:
		return "online"
	case StateProblem:
		return "problem"
	case StateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("unknown:%d", byte(s))
}

// Reading is one poll cycle published to operators. Map keys are UMB channel
// numbers, JSON encodes them as strings. Errors holds device status text for
// channels that did not measure.
type Reading struct {
	StationId int32              `json:"station_id"`
	Time      int64              `json:"time"` // unix nanoseconds
	Values    map[uint16]float64 `json:"values,omitempty"`
	Errors    map[uint16]string  `json:"errors,omitempty"`
}

package actuation

import (
	"fmt"
)

// AxlePosition identifies an axle slot, numbered front to rear.
type AxlePosition uint8

const (
	FrontAxle AxlePosition = iota
	MidAxle
	RearAxle
)

// NumAxles is the number of axle slots on the vehicle.
const NumAxles = 3

// AxleState is the solenoid state requested for an axle.
type AxleState uint8

const (
	Retracted AxleState = 0
	Deployed  AxleState = 1
)

func (s AxleState) String() string {
	switch s {
	case Retracted:
		return "retracted"
	case Deployed:
		return "deployed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// AxleCommand asks the actuation service to put one axle into a state.
type AxleCommand struct {
	Axle  AxlePosition `json:"axle"`
	State AxleState    `json:"state"`
}

func (c AxleCommand) String() string {
	return fmt.Sprintf("axle%d->%v", c.Axle, c.State)
}

// Ack is the actuation service's reply to one command.
type Ack struct {
	Accepted bool
}

// Outcome classifies how a dispatch ended.
type Outcome int

const (
	Acked Outcome = iota
	TimedOut
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Acked:
		return "acked"
	case TimedOut:
		return "timed_out"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

package detector

import (
	"github.com/drobo-robotics/poled/actuation"
	"github.com/drobo-robotics/poled/machine"
)

const (
	// DefaultThreshold is the distance below which a sensor triggers.
	DefaultThreshold machine.Distance = 1100
)

// triggerCommands lists what each sensor emits when it triggers. As an
// object moves rearwards each sensor hands the raised state on to the next
// axle.
var triggerCommands = map[machine.Position][]actuation.AxleCommand{
	machine.Front: {
		{Axle: actuation.FrontAxle, State: actuation.Deployed},
	},
	machine.Mid: {
		{Axle: actuation.FrontAxle, State: actuation.Retracted},
		{Axle: actuation.MidAxle, State: actuation.Deployed},
	},
	machine.Rear: {
		{Axle: actuation.MidAxle, State: actuation.Retracted},
		{Axle: actuation.RearAxle, State: actuation.Deployed},
	},
}

// Triggered returns the sensors reading strictly below threshold, in
// travel order.
func Triggered(d machine.Distances, threshold machine.Distance) []machine.Position {
	var triggered []machine.Position

	if d.Front < threshold {
		triggered = append(triggered, machine.Front)
	}
	if d.Mid < threshold {
		triggered = append(triggered, machine.Mid)
	}
	if d.Rear < threshold {
		triggered = append(triggered, machine.Rear)
	}

	return triggered
}

// Evaluate derives the ordered commands for one cycle. Sensors are level
// triggered: a sensor that stays below threshold emits again every cycle.
func Evaluate(d machine.Distances, threshold machine.Distance) []actuation.AxleCommand {
	var cmds []actuation.AxleCommand

	for _, p := range Triggered(d, threshold) {
		cmds = append(cmds, triggerCommands[p]...)
	}

	return cmds
}

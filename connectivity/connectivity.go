package connectivity

import (
	"context"
	grpcconnectivity "google.golang.org/grpc/connectivity"
)

type State int

const (
	Offline State = iota
	Online
)

func (s State) String() string {
	switch s {
	case Offline:
		return "OFFLINE"
	case Online:
		return "ONLINE"
	default:
		return "INVALID STATE"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reporter tells whether the actuation service can currently be reached.
type Reporter interface {
	CurrentState() State
	// WaitForStateChange blocks until the state differs from state or ctx
	// is done. It returns false in the latter case.
	WaitForStateChange(context.Context, State) bool
}

// Channel is the part of a gRPC client connection the reporter watches.
type Channel interface {
	GetState() grpcconnectivity.State
	WaitForStateChange(ctx context.Context, sourceState grpcconnectivity.State) bool
}

// GrpcReporter derives link state from a gRPC channel. Only a ready channel
// counts as online.
type GrpcReporter struct {
	channel Channel
}

func NewGrpcReporter(channel Channel) *GrpcReporter {
	return &GrpcReporter{channel: channel}
}

func fromGrpc(s grpcconnectivity.State) State {
	if s == grpcconnectivity.Ready {
		return Online
	}
	return Offline
}

func (r *GrpcReporter) CurrentState() State {
	return fromGrpc(r.channel.GetState())
}

func (r *GrpcReporter) WaitForStateChange(ctx context.Context, state State) bool {
	for {
		current := r.channel.GetState()
		if fromGrpc(current) != state {
			return true
		}

		if !r.channel.WaitForStateChange(ctx, current) {
			return false
		}
	}
}

// StaticReporter always reports the same state. It stands in for links
// that cannot go down, like the mock actuator.
type StaticReporter struct {
	state State
}

func NewStaticReporter(state State) *StaticReporter {
	return &StaticReporter{state: state}
}

func (r *StaticReporter) CurrentState() State {
	return r.state
}

func (r *StaticReporter) WaitForStateChange(ctx context.Context, state State) bool {
	if r.state != state {
		return true
	}

	<-ctx.Done()

	return false
}

// Watch calls onChange with the current state and again after every change
// until ctx is done.
func Watch(ctx context.Context, r Reporter, onChange func(State)) {
	state := r.CurrentState()
	onChange(state)

	for r.WaitForStateChange(ctx, state) {
		state = r.CurrentState()
		onChange(state)
	}
}

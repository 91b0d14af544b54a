package actuation

import (
	"context"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"sync"
	"time"
)

type SimulatorConfig struct {
	// Delay is applied before every reply.
	Delay  time.Duration
	Logger Logger
}

// Simulator is an in-memory solenoid bank serving the actuation service.
type Simulator struct {
	mu      sync.Mutex
	log     Logger
	delay   time.Duration
	silent  bool
	states  [NumAxles]AxleState
	history []AxleCommand
}

var _ SolenoidStateServer = (*Simulator)(nil)

func NewSimulator(config *SimulatorConfig) *Simulator {
	s := &Simulator{}

	if config != nil {
		s.delay = config.Delay
		s.log = config.Logger
	}

	if s.log == nil {
		s.log = noopLogger{}
	}

	return s
}

// NewServer returns a gRPC server with the simulator registered.
func (s *Simulator) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	RegisterSolenoidStateServer(srv, s)
	return srv
}

func (s *Simulator) SetState(ctx context.Context, req *SetStateRequest) (*SetStateResponse, error) {
	if req.AxlePosition >= NumAxles {
		return nil, status.Errorf(codes.InvalidArgument, "no axle at position %d", req.AxlePosition)
	}

	if req.State != uint32(Retracted) && req.State != uint32(Deployed) {
		return nil, status.Errorf(codes.InvalidArgument, "invalid solenoid state %d", req.State)
	}

	s.mu.Lock()
	delay, silent := s.delay, s.silent
	s.mu.Unlock()

	if silent {
		<-ctx.Done()
		return nil, status.FromContextError(ctx.Err()).Err()
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, status.FromContextError(ctx.Err()).Err()
		}
	}

	cmd := AxleCommand{Axle: AxlePosition(req.AxlePosition), State: AxleState(req.State)}

	s.mu.Lock()
	s.states[cmd.Axle] = cmd.State
	s.history = append(s.history, cmd)
	s.mu.Unlock()

	s.log.Debugf("Solenoid %v", cmd)

	return &SetStateResponse{Accepted: true}, nil
}

// SetDelay changes the reply delay of following requests.
func (s *Simulator) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.delay = d
}

// SetSilent makes the simulator hold every request until the caller gives
// up.
func (s *Simulator) SetSilent(silent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.silent = silent
}

func (s *Simulator) States() [NumAxles]AxleState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.states
}

// History returns every applied command in arrival order.
func (s *Simulator) History() []AxleCommand {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]AxleCommand(nil), s.history...)
}

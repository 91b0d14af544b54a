package actuation

import (
	"context"
	"fmt"
	"github.com/go-errors/errors"
)

// ErrNoReply is returned by a Client when the context ended before the
// actuation service answered. The call has been abandoned.
var ErrNoReply = errors.New("no reply from actuation service")

// RemoteError is an explicit error reply from the actuation service.
type RemoteError struct {
	Command AxleCommand
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("actuation service refused %v: %v %v", e.Command, e.Code, e.Message)
}

// Client sends one axle command and waits for the correlated reply. Send must
// give up and return ErrNoReply once ctx is done.
type Client interface {
	Send(ctx context.Context, cmd AxleCommand) (*Ack, error)
}

package actuation

import (
	"context"
	"sync"
)

// MockClient acknowledges every command locally and records it. Reply can
// be replaced to simulate a misbehaving actuation service.
type MockClient struct {
	mu    sync.Mutex
	log   Logger
	sent  []AxleCommand
	Reply func(ctx context.Context, cmd AxleCommand) (*Ack, error)
}

var _ Client = (*MockClient)(nil)

func NewMockClient(logger Logger) *MockClient {
	c := &MockClient{log: logger}

	if c.log == nil {
		c.log = noopLogger{}
	}

	return c
}

func (c *MockClient) Send(ctx context.Context, cmd AxleCommand) (*Ack, error) {
	c.mu.Lock()
	c.sent = append(c.sent, cmd)
	reply := c.Reply
	c.mu.Unlock()

	c.log.Debugf("Mock actuation of %v", cmd)

	if reply != nil {
		return reply(ctx, cmd)
	}

	return &Ack{Accepted: true}, nil
}

// Sent returns every command in the order Send received them.
func (c *MockClient) Sent() []AxleCommand {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]AxleCommand(nil), c.sent...)
}

// NeverReply waits for the caller to give up, like a service that dropped
// the request.
func NeverReply(ctx context.Context, cmd AxleCommand) (*Ack, error) {
	<-ctx.Done()
	return nil, ErrNoReply
}

package actuation

import (
	"context"
	"testing"
	"time"
)

func TestDispatchAcked(t *testing.T) {
	client := NewMockClient(nil)
	d := NewDispatcher(&DispatcherConfig{Client: client})

	cmd := AxleCommand{Axle: MidAxle, State: Deployed}

	res, err := d.Dispatch(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Outcome != Acked || res.Attempts != 1 || res.Command != cmd {
		t.Fatalf("result = %+v, want acked after one attempt", res)
	}
	if sent := client.Sent(); len(sent) != 1 || sent[0] != cmd {
		t.Fatalf("sent = %v", sent)
	}
}

func TestDispatchDefaultTimeout(t *testing.T) {
	d := NewDispatcher(&DispatcherConfig{Client: NewMockClient(nil)})
	if d.timeout != time.Second {
		t.Fatalf("default timeout = %v, want 1s", d.timeout)
	}
}

func TestDispatchTimeoutIsDroppedWithoutRetry(t *testing.T) {
	client := NewMockClient(nil)
	client.Reply = NeverReply

	d := NewDispatcher(&DispatcherConfig{Client: client, Timeout: 50 * time.Millisecond})

	start := time.Now()
	res, err := d.Dispatch(context.Background(), AxleCommand{Axle: FrontAxle, State: Deployed})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond || elapsed > time.Second {
		t.Fatalf("dispatch took %v, want about 50ms", elapsed)
	}
	if res.Outcome != TimedOut {
		t.Fatalf("outcome = %v, want timed_out", res.Outcome)
	}
	if n := len(client.Sent()); n != 1 {
		t.Fatalf("command sent %d times, want 1", n)
	}
}

func TestDispatchGivesUpPendingCall(t *testing.T) {
	abandoned := make(chan struct{})

	client := NewMockClient(nil)
	client.Reply = func(ctx context.Context, cmd AxleCommand) (*Ack, error) {
		<-ctx.Done()
		close(abandoned)
		return nil, ErrNoReply
	}

	d := NewDispatcher(&DispatcherConfig{Client: client, Timeout: 10 * time.Millisecond})
	if _, err := d.Dispatch(context.Background(), AxleCommand{}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	select {
	case <-abandoned:
	default:
		t.Fatalf("pending call was not abandoned")
	}
}

func TestDispatchRejectedIsSkipped(t *testing.T) {
	client := NewMockClient(nil)
	client.Reply = func(ctx context.Context, cmd AxleCommand) (*Ack, error) {
		return nil, &RemoteError{Command: cmd, Code: "Internal", Message: "jammed"}
	}

	d := NewDispatcher(&DispatcherConfig{Client: client})

	res, err := d.Dispatch(context.Background(), AxleCommand{Axle: RearAxle, State: Deployed})
	if err != nil {
		t.Fatalf("Dispatch returned %v, want skip", err)
	}
	if res.Outcome != Rejected || res.Err == nil {
		t.Fatalf("result = %+v, want rejected", res)
	}
}

func TestDispatchNotAcceptedIsRejected(t *testing.T) {
	client := NewMockClient(nil)
	client.Reply = func(ctx context.Context, cmd AxleCommand) (*Ack, error) {
		return &Ack{Accepted: false}, nil
	}

	res, err := NewDispatcher(&DispatcherConfig{Client: client}).Dispatch(context.Background(), AxleCommand{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Outcome != Rejected {
		t.Fatalf("outcome = %v, want rejected", res.Outcome)
	}
}

func TestDispatchFatalOnError(t *testing.T) {
	client := NewMockClient(nil)
	client.Reply = func(ctx context.Context, cmd AxleCommand) (*Ack, error) {
		return nil, &RemoteError{Command: cmd, Code: "Internal"}
	}

	d := NewDispatcher(&DispatcherConfig{Client: client, FatalOnError: true})

	res, err := d.Dispatch(context.Background(), AxleCommand{})
	if err == nil {
		t.Fatalf("Dispatch succeeded, want fatal error")
	}
	if res.Outcome != Rejected {
		t.Fatalf("outcome = %v, want rejected", res.Outcome)
	}
}

func TestDispatchRetriesTimeouts(t *testing.T) {
	client := NewMockClient(nil)
	client.Reply = NeverReply

	d := NewDispatcher(&DispatcherConfig{
		Client:        client,
		Timeout:       10 * time.Millisecond,
		Retries:       2,
		RetryInterval: time.Millisecond,
	})

	res, err := d.Dispatch(context.Background(), AxleCommand{Axle: MidAxle, State: Retracted})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Outcome != TimedOut || res.Attempts != 3 {
		t.Fatalf("result = %+v, want timed out after 3 attempts", res)
	}
	if n := len(client.Sent()); n != 3 {
		t.Fatalf("sent %d times, want 3", n)
	}
}

func TestDispatchRetrySucceeds(t *testing.T) {
	calls := 0

	client := NewMockClient(nil)
	client.Reply = func(ctx context.Context, cmd AxleCommand) (*Ack, error) {
		calls++
		if calls == 1 {
			return NeverReply(ctx, cmd)
		}
		return &Ack{Accepted: true}, nil
	}

	d := NewDispatcher(&DispatcherConfig{
		Client:        client,
		Timeout:       10 * time.Millisecond,
		Retries:       3,
		RetryInterval: time.Millisecond,
	})

	res, err := d.Dispatch(context.Background(), AxleCommand{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Outcome != Acked || res.Attempts != 2 {
		t.Fatalf("result = %+v, want acked on attempt 2", res)
	}
}

func TestDispatchRetryStopsOnRejection(t *testing.T) {
	client := NewMockClient(nil)
	client.Reply = func(ctx context.Context, cmd AxleCommand) (*Ack, error) {
		return nil, &RemoteError{Command: cmd, Code: "Internal"}
	}

	d := NewDispatcher(&DispatcherConfig{Client: client, Retries: 5, RetryInterval: time.Millisecond})

	res, err := d.Dispatch(context.Background(), AxleCommand{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Outcome != Rejected || res.Attempts != 1 {
		t.Fatalf("result = %+v, want rejected after one attempt", res)
	}
}

func TestDispatchParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewMockClient(nil)
	client.Reply = NeverReply

	if _, err := NewDispatcher(&DispatcherConfig{Client: client}).Dispatch(ctx, AxleCommand{}); err == nil {
		t.Fatalf("Dispatch succeeded with cancelled context")
	}
}

package actuation

import (
	"context"
	"github.com/cenkalti/backoff/v5"
	"github.com/go-errors/errors"
	"time"
)

// DefaultTimeout bounds the wait for a reply to one command.
const DefaultTimeout = time.Second

type DispatcherConfig struct {
	Client  Client
	Timeout time.Duration
	// Retries is how many times a command that got no reply is sent again.
	// Zero drops it on the first timeout.
	Retries int
	// RetryInterval is the first pause between redeliveries; it doubles on
	// every further attempt.
	RetryInterval time.Duration
	// FatalOnError turns an explicit error reply into an error returned from
	// Dispatch instead of a skipped command.
	FatalOnError bool
	Logger       Logger
}

// Result describes one finished dispatch.
type Result struct {
	Command  AxleCommand
	Outcome  Outcome
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// Dispatcher delivers commands one at a time over a Client.
type Dispatcher struct {
	client        Client
	timeout       time.Duration
	retries       int
	retryInterval time.Duration
	fatalOnError  bool
	log           Logger
}

func NewDispatcher(config *DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		client:        config.Client,
		timeout:       config.Timeout,
		retries:       config.Retries,
		retryInterval: config.RetryInterval,
		fatalOnError:  config.FatalOnError,
		log:           config.Logger,
	}

	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}

	if d.retryInterval <= 0 {
		d.retryInterval = 50 * time.Millisecond
	}

	if d.retries < 0 {
		d.retries = 0
	}

	if d.log == nil {
		d.log = noopLogger{}
	}

	return d
}

// Dispatch sends cmd and waits up to the timeout for its reply. A command
// without reply is abandoned and reported as TimedOut, an error reply as
// Rejected. The returned error is non-nil only when dispatching cannot go
// on: the parent context ended, or a rejection with FatalOnError set.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd AxleCommand) (*Result, error) {
	start := time.Now()
	res := &Result{Command: cmd}

	var ack *Ack
	var err error

	if d.retries == 0 {
		res.Attempts = 1
		ack, err = d.attempt(ctx, cmd)
	} else {
		ack, err = d.retry(ctx, cmd, &res.Attempts)
	}

	res.Elapsed = time.Since(start)

	if ctx.Err() != nil {
		res.Outcome = TimedOut
		res.Err = ctx.Err()
		return res, errors.Errorf("Dispatch of %v interrupted: %v", cmd, ctx.Err())
	}

	switch {
	case err == nil && ack != nil && ack.Accepted:
		res.Outcome = Acked
		d.log.Debugf("Dispatched %v in %v", cmd, res.Elapsed)
		return res, nil

	case errors.Is(err, ErrNoReply):
		res.Outcome = TimedOut
		res.Err = err
		d.log.Warnf("No reply for %v after %v, dropping it", cmd, res.Elapsed)
		return res, nil
	}

	if err == nil {
		err = &RemoteError{Command: cmd, Message: "not accepted"}
	}

	res.Outcome = Rejected
	res.Err = err

	if d.fatalOnError {
		return res, errors.Errorf("Actuation service rejected %v: %v", cmd, err)
	}

	d.log.Errorf("Skipping %v: %v", cmd, err)

	return res, nil
}

// attempt runs one send. Cancelling the call context on return abandons a
// call that is still pending so the transport can reclaim it.
func (d *Dispatcher) attempt(ctx context.Context, cmd AxleCommand) (*Ack, error) {
	callCtx, giveUp := context.WithTimeout(ctx, d.timeout)
	defer giveUp()

	return d.client.Send(callCtx, cmd)
}

func (d *Dispatcher) retry(ctx context.Context, cmd AxleCommand, attempts *int) (*Ack, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.retryInterval
	b.MaxInterval = 10 * d.retryInterval

	op := func() (*Ack, error) {
		*attempts++

		ack, err := d.attempt(ctx, cmd)
		if err != nil && !errors.Is(err, ErrNoReply) {
			return nil, backoff.Permanent(err)
		}

		if err != nil {
			d.log.Debugf("Attempt %d of %v got no reply", *attempts, cmd)
		}

		return ack, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(d.retries+1)),
	)
}

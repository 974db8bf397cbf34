package scm

import (
	"context"
	"errors"
	"fmt"

	"servicectl/internal/svcerr"
	"servicectl/internal/svcflag"
)

// WaitState polls the service status until it reaches target. The service
// may only pass through pending on the way; any other state fails with
// ErrUnexpectedState. The wait gives up with ErrTimeout after the client's
// wait timeout, or when ctx is done.
func (c *Client) WaitState(ctx context.Context, name string, pending, target svcflag.ServiceState) (Status, error) {
	if err := c.check("wait", name, true); err != nil {
		return Status{}, err
	}

	timeout := c.clock.Timer(c.waitTimeout)
	defer timeout.Stop()
	ticker := c.clock.Ticker(c.pollInterval)
	defer ticker.Stop()

	for {
		st, err := c.backend.GetStatus(name)
		if err != nil {
			return Status{}, err
		}

		switch st.State {
		case target:
			return st, nil
		case pending:
		default:
			return st, &svcerr.OpError{
				Op:   "wait",
				Name: name,
				Err:  fmt.Errorf("%w: %s while waiting for %s", svcerr.ErrUnexpectedState, st.State, target),
			}
		}

		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-timeout.C:
			return st, &svcerr.OpError{
				Op:   "wait",
				Name: name,
				Err:  fmt.Errorf("%w: still %s after %s", svcerr.ErrTimeout, st.State, c.waitTimeout),
			}
		case <-ticker.C:
		}
	}
}

// StartAndWait starts the service and waits until it is RUNNING.
func (c *Client) StartAndWait(ctx context.Context, name string) (Status, error) {
	if err := c.Start(ctx, name); err != nil {
		return Status{}, err
	}
	return c.WaitState(ctx, name, svcflag.StateStartPending, svcflag.StateRunning)
}

// StopAndWait stops the service and waits until it is STOPPED. A service
// that is already stopped is not an error.
func (c *Client) StopAndWait(ctx context.Context, name string) (Status, error) {
	if err := c.Stop(ctx, name); err != nil && !errors.Is(err, svcerr.ErrNotRunning) {
		return Status{}, err
	}
	return c.WaitState(ctx, name, svcflag.StateStopPending, svcflag.StateStopped)
}

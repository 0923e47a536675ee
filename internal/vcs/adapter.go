package vcs

import (
	"context"
	"fmt"
	"time"
)

// Adapter routes git invocations from the sandbox to a Client.
type Adapter struct {
	client  Client
	timeout time.Duration // 0 means no deadline beyond ctx
}

// NewAdapter creates an adapter bounding each invocation by timeout.
func NewAdapter(client Client, timeout time.Duration) *Adapter {
	return &Adapter{client: client, timeout: timeout}
}

// Run executes `git <args>` against dir. `clone <url>` with exactly one URL
// clones into dir itself and reports where; anything else is passed through
// and returns git's stdout unchanged.
func (a *Adapter) Run(ctx context.Context, dir string, args []string) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	if len(args) == 2 && args[0] == "clone" {
		if err := a.client.Clone(ctx, args[1], dir); err != nil {
			return "", err
		}
		return fmt.Sprintf("Repository cloned into %s", dir), nil
	}

	return a.client.Raw(ctx, dir, args)
}

// Timeout returns the per-invocation deadline.
func (a *Adapter) Timeout() time.Duration {
	return a.timeout
}

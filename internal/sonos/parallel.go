package sonos

import (
	"context"
)

// FanOut runs fn once per host concurrently and returns the first error seen.
//
// Every request is dispatched before any result is read. When one fails the
// remaining results are no longer awaited, but requests already sent are not
// undone: a group can end up partially updated until the next command or poll.
func FanOut(ctx context.Context, hosts []string, fn func(ctx context.Context, host string) error) error {
	if len(hosts) == 0 {
		return nil
	}

	// Buffered so stragglers can finish after an early return.
	results := make(chan error, len(hosts))
	for _, host := range hosts {
		go func(target string) {
			results <- fn(ctx, target)
		}(host)
	}

	for range hosts {
		if err := <-results; err != nil {
			return err
		}
	}
	return nil
}

package util

import (
	"context"
	"time"
)

// RetryUntilSuccess calls performAction until it succeeds or ctx is done, calling onError after every
// failure and pausing for backoff in between.
func RetryUntilSuccess(ctx context.Context, backoff time.Duration, performAction func() error, onError func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			err := performAction()
			if err == nil {
				return
			}
			onError(err)
		}
		if backoff > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}
	}
}

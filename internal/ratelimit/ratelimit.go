// Package ratelimit bounds how often a key may perform an action within a
// fixed window.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed bool
	Count   int64
	Limit   int
	ResetAt time.Time
}

// Remaining returns how many more calls fit in the current window.
func (d Decision) Remaining() int {
	left := int64(d.Limit) - d.Count
	if left < 0 {
		return 0
	}
	return int(left)
}

// Limiter decides whether key may proceed. On backend failure it returns an
// allowing decision together with the error.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

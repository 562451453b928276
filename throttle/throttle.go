// Package throttle paces simulated exchanges with a token bucket, letting
// load-style tests drive an application at a bounded request rate.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrMustNotBeZero = errors.New("must be greater than zero")
	ErrWaitingFailed = errors.New("limiter waiting failed")
	ErrContextEnded  = errors.New("throttle context ended")
)

// Limiter gates exchanges using the time/rate token bucket. logFn lazily
// resolves the logger at wait time, making option ordering irrelevant. A
// nil-returning logFn skips the calls to *rate.Limiter.Allow().
type Limiter struct {
	limiter *rate.Limiter
	rps     int
	burst   int
	logFn   func() *slog.Logger
}

// New returns a Limiter allowing rps exchanges per second with the given
// burst capacity.
func New(rps, burst int, logFn func() *slog.Logger) (*Limiter, error) {
	if rps <= 0 || burst <= 0 {
		return nil, fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, ErrMustNotBeZero)
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		rps:     rps,
		burst:   burst,
		logFn:   logFn,
	}, nil
}

// Wait blocks until the bucket allows one more exchange or ctx ends.
func (l *Limiter) Wait(ctx context.Context, path string) error {
	if l == nil || l.limiter == nil {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w early: %w", ErrContextEnded, err)
	}

	var waited time.Duration
	logger := l.logFn()
	if logger != nil && !l.limiter.Allow() {
		logger.Info("throttle tokens exhausted", "rate", l.rps, "burst", l.burst, "path", path)

		defer func() {
			logger.Info("throttle wait complete", "waited", waited.String(), "rate", l.rps, "burst", l.burst)
		}()
	}

	start := time.Now()

	err := l.limiter.Wait(ctx)
	waited = time.Since(start)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWaitingFailed, err)
	}

	if err := ctx.Err(); err != nil { // Check context hasn't expired again.
		return fmt.Errorf("%w post-wait: %w", ErrContextEnded, err)
	}

	return nil
}

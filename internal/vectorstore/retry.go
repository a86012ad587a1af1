package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts, temporary unavailability.
// Returns false for invalid arguments, not found, permission denied.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// breakerCooldown is how long an open circuit rejects calls.
const breakerCooldown = 30 * time.Second

// retrier retries transient failures with exponential backoff and opens a
// circuit breaker after threshold consecutive failures.
type retrier struct {
	maxRetries int
	backoff    time.Duration
	threshold  int
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.Mutex
	failures int
	lastFail time.Time
}

func newRetrier(maxRetries int, backoff time.Duration, threshold int, logger *zap.Logger) *retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retrier{
		maxRetries: maxRetries,
		backoff:    backoff,
		threshold:  threshold,
		logger:     logger,
		now:        time.Now,
	}
}

// do runs operation until it succeeds, fails permanently or runs out of retries.
func (r *retrier) do(ctx context.Context, name string, operation func() error) error {
	if r.isOpen() {
		return fmt.Errorf("%s: %w", name, ErrCircuitOpen)
	}

	backoff := r.backoff
	for attempt := 0; ; attempt++ {
		err := operation()
		if err == nil {
			if attempt > 0 {
				r.logger.Info("vector index operation recovered after retries",
					zap.String("operation", name),
					zap.Int("attempts", attempt))
			}
			r.reset()
			return nil
		}

		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", name, err)
		}

		r.recordFailure()
		if r.isOpen() {
			return fmt.Errorf("%s: %w: %w", name, ErrCircuitOpen, err)
		}
		if attempt >= r.maxRetries {
			r.logger.Warn("vector index operation failed after all retries exhausted",
				zap.String("operation", name),
				zap.Int("total_attempts", attempt+1),
				zap.Error(err))
			return fmt.Errorf("%s failed after %d retries: %w", name, r.maxRetries, err)
		}

		RetriesTotal.WithLabelValues(name).Inc()
		r.logger.Debug("retrying vector index operation after transient error",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

func (r *retrier) recordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
	r.lastFail = r.now()
}

func (r *retrier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = 0
}

func (r *retrier) isOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.threshold <= 0 || r.failures < r.threshold {
		return false
	}
	// Half-open after the cooldown: let the next call through.
	if r.now().Sub(r.lastFail) > breakerCooldown {
		r.failures = 0
		return false
	}
	return true
}

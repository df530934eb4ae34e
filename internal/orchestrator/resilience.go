package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/codeframe/conductor/internal/scheduler"
	"github.com/codeframe/conductor/internal/worker"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// CircuitBreakerRegistry manages per-agent-type circuit breakers.
// A flaky backend executor must not trip retries for frontend or test work.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[scheduler.AgentType]*gobreaker.CircuitBreaker
}

// NewCircuitBreakerRegistry creates a new circuit breaker registry.
func NewCircuitBreakerRegistry() *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[scheduler.AgentType]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for the given agent type.
// Creates a new one if it doesn't exist.
func (r *CircuitBreakerRegistry) Get(agentType scheduler.AgentType) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[agentType]; ok {
		return cb
	}

	// Create new circuit breaker
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(agentType),
		MaxRequests: 3,                // Allow 3 test requests in half-open state
		Interval:    0,                // Don't clear counts automatically
		Timeout:     30 * time.Second, // Stay open for 30s before testing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip circuit after 5 consecutive failures
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Don't count user cancellation as executor failure
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})

	r.breakers[agentType] = cb
	return cb
}

// executeWithRetry runs a task through an executor with exponential backoff
// retry and circuit breaker protection. maxRetries bounds the number of
// re-attempts after the first try; notify fires once per retry that will
// actually happen, before the backoff sleep.
func executeWithRetry(ctx context.Context, exec worker.Executor, task *scheduler.Task, cb *gobreaker.CircuitBreaker, retryCfg RetryConfig, maxRetries int, notify backoff.Notify) (*worker.Result, error) {
	var res *worker.Result

	operation := func() error {
		// Check context first - fail fast if cancelled
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		// Execute through circuit breaker
		result, err := cb.Execute(func() (interface{}, error) {
			return exec.Execute(ctx, task)
		})

		// Handle circuit breaker errors
		if err != nil {
			// Circuit is open - don't retry
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}

			// Context cancelled - stop retrying
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}

			// Other errors will be retried
			return err
		}

		// Success - cast result back
		res = result.(*worker.Result)
		return nil
	}

	// Create exponential backoff policy
	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = retryCfg.InitialInterval
	backoffPolicy.MaxInterval = retryCfg.MaxInterval
	backoffPolicy.MaxElapsedTime = retryCfg.MaxElapsedTime
	backoffPolicy.Multiplier = retryCfg.Multiplier
	backoffPolicy.RandomizationFactor = retryCfg.RandomizationFactor

	if maxRetries < 0 {
		maxRetries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoffPolicy, uint64(maxRetries)), ctx)

	if notify == nil {
		notify = func(error, time.Duration) {}
	}

	// Execute with retry
	err := backoff.RetryNotify(operation, policy, notify)
	return res, err
}

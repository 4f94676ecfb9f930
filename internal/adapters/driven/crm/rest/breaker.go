package rest

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
	"github.com/custodia-labs/fieldsync/internal/logger"
	"github.com/custodia-labs/fieldsync/internal/metrics"
)

// newBreaker opens after failures consecutive failed calls and probes
// again with a single request after cooldown.
func newBreaker(failures uint32, cooldown time.Duration) *gobreaker.CircuitBreaker[[]byte] {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cooldown,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},

		// The CRM answering "no" is not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrRejected) ||
				errors.Is(err, domain.ErrNotFound) ||
				errors.Is(err, domain.ErrInvalidInput) ||
				errors.Is(err, context.Canceled)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logger.L().Warn().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("CRM circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})
}

// stateToFloat converts circuit breaker state to numeric value for metrics.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

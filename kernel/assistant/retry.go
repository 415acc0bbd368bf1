package assistant

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonworks/tempo/kernel/model"
	"github.com/halcyonworks/tempo/kernel/model/providers"
)

// transientMarkers is the substring fallback for transports that surface
// untyped errors. Typed classification through providers.APIError and
// net.Error is preferred and checked first.
var transientMarkers = []string{
	"503",
	"429",
	"fetch failed",
	"connection refused",
	"connection reset",
}

// withRetry runs op, retrying transient failures up to maxRetries times.
// The delay before retry n is retryBaseDelay * 2^n plus jitter drawn from
// [0, retryBaseDelay); with the default one-second base that is the
// 2s/4s/8s ladder. Non-transient failures and context cancellation
// propagate immediately.
func (m *Manager) withRetry(ctx context.Context, op func() (*model.Response, error)) (*model.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := op()
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if attempt >= m.maxRetries || !transientError(err) {
			return nil, err
		}
		delay := m.retryBaseDelay*(1<<(attempt+1)) + time.Duration(rand.Float64()*float64(m.retryBaseDelay))
		m.logger.Warn("assistant: transient send failure, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// transientError reports whether err looks like a recoverable rate-limit,
// unavailability or transport failure.
func transientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *providers.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

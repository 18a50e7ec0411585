package model

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedModel delays Generate calls so that at most the limiter's rate
// of requests reaches the wrapped model.
type RateLimitedModel struct {
	Model
	limiter *rate.Limiter
}

// WithRateLimit wraps m with a token bucket allowing rps requests per second
// and bursts of burst.
func WithRateLimit(m Model, rps float64, burst int) *RateLimitedModel {
	return &RateLimitedModel{Model: m, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Generate implements Model.
func (m *RateLimitedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	out := make(chan Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if err := m.limiter.Wait(ctx); err != nil {
			errCh <- err
			return
		}

		respCh, innerErr := m.Model.Generate(ctx, req)
		for respCh != nil || innerErr != nil {
			select {
			case r, ok := <-respCh:
				if !ok {
					respCh = nil
					continue
				}
				select {
				case out <- r:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			case err, ok := <-innerErr:
				if !ok {
					innerErr = nil
					continue
				}
				if err != nil {
					errCh <- err
					return
				}
			}
		}
	}()

	return out, errCh
}

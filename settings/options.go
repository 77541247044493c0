package settings

import (
	"go.uber.org/ratelimit"
)

type ServiceOption func(*Service)

// WithWriteRatelimiter caps the rate of settings writes, process wide.
func WithWriteRatelimiter(limiter ratelimit.Limiter) ServiceOption {
	return func(svc *Service) {
		svc.writeLimiter = limiter
	}
}

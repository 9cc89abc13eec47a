package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dunamismax/pixelprep/internal/ratelimit"
)

type RateLimiter interface {
	AllowN(ctx context.Context, subject string, n int) (ratelimit.Decision, error)
}

// withRateLimit charges one token for mutating job routes. Job creation and
// describe are charged by their handlers once the body has been validated.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !shouldRateLimit(r) {
			next.ServeHTTP(w, r)
			return
		}
		if s.allow(w, r, 1) {
			next.ServeHTTP(w, r)
		}
	})
}

// allow takes cost tokens for the caller and writes a 429 when the bucket is
// empty. Limiter failures let the request through.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, cost int) bool {
	if s.rateLimiter == nil {
		return true
	}

	subject := strings.TrimSpace(r.Header.Get(s.rateLimitUserIDHeader))
	if subject == "" {
		subject = "anonymous"
	}
	route := routeLabel(r.URL.Path)
	subject = subject + ":" + route

	decision, err := s.rateLimiter.AllowN(r.Context(), subject, cost)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"subject": subject}).WithError(err).Warn("rate limiter check failed")
		return true
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
	if decision.Allowed {
		return true
	}

	retryAfter := max(int(decision.RetryAfter.Round(time.Second).Seconds()), 1)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	s.metrics.rateLimitRejected.WithLabelValues(route).Inc()
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

func shouldRateLimit(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	return strings.HasPrefix(r.URL.Path, "/v1/jobs/") && strings.HasSuffix(r.URL.Path, "/start")
}

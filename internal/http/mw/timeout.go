package mw

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
)

// TimeoutConfig picks a deadline per request path.
type TimeoutConfig struct {
	Default  time.Duration
	Extended time.Duration

	// ExtendedPatterns get the Extended deadline (run dispatch, log reads).
	ExtendedPatterns []string
	// SkipPatterns get no deadline at all; the progress stream stays open
	// for as long as the client listens.
	SkipPatterns []string
}

func (c TimeoutConfig) skip(path string) bool {
	for _, p := range c.SkipPatterns {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

func (c TimeoutConfig) limit(path string) time.Duration {
	for _, p := range c.ExtendedPatterns {
		if strings.Contains(path, p) {
			return c.Extended
		}
	}
	return c.Default
}

// repanic carries a handler panic across the goroutine boundary together
// with the stack from where it happened.
type repanic struct {
	value any
	stack []byte
}

// Timeout enforces per-path request deadlines. The handler runs in its own
// goroutine so an expired deadline can answer 504 without waiting for it;
// panics are re-raised on the request goroutine so the outer recoverer
// still sees them.
func Timeout(cfg TimeoutConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.skip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), cfg.limit(r.URL.Path))
			defer cancel()

			done := make(chan struct{})
			panicked := make(chan repanic, 1)
			go func() {
				defer func() {
					if v := recover(); v != nil {
						panicked <- repanic{value: v, stack: debug.Stack()}
					}
				}()
				next.ServeHTTP(w, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
			case p := <-panicked:
				panic(fmt.Sprintf("%v\n\nOriginal stack trace:\n%s", p.value, p.stack))
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					w.WriteHeader(http.StatusGatewayTimeout)
				}
			}
		})
	}
}

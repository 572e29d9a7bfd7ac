package api

import (
	"net/http"
	"os"
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimit caps optimization request throughput per tenant. RATE_LIMIT_RPS
// sets the sustained rate (default 10); bursts of twice that are allowed.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	rps := 10.0
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			rps = f
		}
	}
	var mu sync.Mutex
	limiters := map[string]*rate.Limiter{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := s.getPrincipal(r).Tenant
		mu.Lock()
		lim := limiters[tenant]
		if lim == nil {
			lim = rate.NewLimiter(rate.Limit(rps), int(rps*2))
			limiters[tenant] = lim
		}
		mu.Unlock()
		if !lim.Allow() {
			writeProblem(w, http.StatusTooManyRequests, "Rate limited", "per-tenant request rate exceeded", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

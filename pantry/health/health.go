// pantry/health/health.go
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/contactrelay/httputil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Check probes one dependency. It returns nil when the dependency is usable.
type Check func(ctx context.Context) error

// Response is the JSON body of the health endpoint.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DefaultTimeout bounds each check when Handler is given zero.
const DefaultTimeout = 5 * time.Second

// Handler runs every check concurrently, each bounded by timeout, and
// answers 200 {"status":"ok"} or 503 {"status":"error"} with per-check
// results. With no checks it is a plain liveness probe.
func Handler(checks map[string]Check, timeout time.Duration, logger *zap.Logger) http.Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(names) == 0 {
			httputil.WriteJSON(w, http.StatusOK, Response{Status: "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		errs := make([]error, len(names))
		var wg sync.WaitGroup
		for i, name := range names {
			check := checks[name]
			if check == nil {
				continue
			}
			wg.Add(1)
			go func(i int, check Check) {
				defer wg.Done()
				errs[i] = check(ctx)
			}(i, check)
		}
		wg.Wait()

		resp := Response{Status: "ok", Checks: make(map[string]string, len(names))}
		for i, name := range names {
			if errs[i] == nil {
				resp.Checks[name] = "ok"
				continue
			}
			resp.Status = "error"
			resp.Checks[name] = "error: " + errs[i].Error()
			logger.Warn("health check failed", zap.String("check", name), zap.Error(errs[i]))
		}

		code := http.StatusOK
		if resp.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, resp)
	})
}

// Mount attaches GET /health.
func Mount(r chi.Router, checks map[string]Check, timeout time.Duration, logger *zap.Logger) {
	r.Method(http.MethodGet, "/health", Handler(checks, timeout, logger))
}

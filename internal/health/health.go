// Package health serves the liveness and readiness probes of the
// diagnostics listener.
//
//   - GET /healthz always answers 200 while the process serves HTTP.
//   - GET /readyz runs every [Checker] concurrently. A failing required
//     check turns the answer into 503 "fail". A failing optional check
//     (a missing microphone, say) only marks it "degraded" and keeps 200,
//     because the trainer still works without it.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds each readiness check.
const checkTimeout = 3 * time.Second

// Overall statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker is one named readiness check.
type Checker struct {
	// Name keys the check in the response.
	Name string

	// Optional checks can fail without failing readiness.
	Optional bool

	// Check returns nil while the dependency is usable. It must respect ctx.
	Check func(ctx context.Context) error
}

// checkResult is the outcome of one check in the response.
type checkResult struct {
	OK       bool   `json:"ok"`
	Optional bool   `json:"optional,omitempty"`
	Error    string `json:"error,omitempty"`
	Millis   int64  `json:"ms"`
}

type result struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed.
type Handler struct {
	checkers []Checker
}

// New returns a Handler over checkers.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: StatusOK})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := h.evaluate(r.Context())
	code := http.StatusOK
	if res.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, res)
}

// evaluate runs all checkers and folds their outcomes into one status.
func (h *Handler) evaluate(ctx context.Context) result {
	var (
		mu     sync.Mutex
		checks = make(map[string]checkResult, len(h.checkers))
		g      errgroup.Group
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			start := time.Now()
			err := c.Check(cctx)
			cr := checkResult{OK: err == nil, Optional: c.Optional, Millis: time.Since(start).Milliseconds()}
			if err != nil {
				cr.Error = err.Error()
			}
			mu.Lock()
			checks[c.Name] = cr
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status := StatusOK
	for _, cr := range checks {
		switch {
		case cr.OK:
		case cr.Optional:
			if status == StatusOK {
				status = StatusDegraded
			}
		default:
			status = StatusFail
		}
	}
	return result{Status: status, Checks: checks}
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"fail"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

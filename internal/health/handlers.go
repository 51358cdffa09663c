package health

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-galeri/internal/common"
)

const defaultCheckTimeout = 500 * time.Millisecond

var draining atomic.Bool

var errNoCheck = errors.New("health: dependency has no check")

// SetReady toggles readiness. The API turns it off before draining so load
// balancers stop routing new webhooks to an instance that is shutting down.
func SetReady(v bool) { draining.Store(!v) }

// Dependency is something the API cannot serve requests without.
type Dependency struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

// Handler serves /health/live and /health/ready.
type Handler struct {
	Dependencies []Dependency
	Logger       *zerolog.Logger
}

// Report is the readiness response body. Checks maps each dependency name to
// "ok" or "fail"; error details only go to the log.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Live reports that the process is up. It never touches dependencies.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready checks every dependency concurrently. It answers 503 when a check
// fails, when none is configured and while the instance is draining.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, Report{Status: "draining"})
		return
	}
	if len(h.Dependencies) == 0 {
		common.JSON(w, http.StatusServiceUnavailable, Report{Status: "unconfigured"})
		return
	}

	errs := make([]error, len(h.Dependencies))
	var wg sync.WaitGroup
	for i, p := range h.Dependencies {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = p.run(r.Context())
		}()
	}
	wg.Wait()

	report := Report{Status: "ok", Checks: make(map[string]string, len(h.Dependencies))}
	for i, p := range h.Dependencies {
		if errs[i] != nil {
			report.Status = "degraded"
			report.Checks[p.Name] = "fail"
			h.logger().Warn().Err(errs[i]).Str("dependency", p.Name).Msg("readiness check failed")
			continue
		}
		report.Checks[p.Name] = "ok"
	}
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	common.JSON(w, status, report)
}

func (p Dependency) run(ctx context.Context) error {
	if p.Check == nil {
		return errNoCheck
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Check(ctx)
}

func (h Handler) logger() *zerolog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

// Package health defines the optional liveness-probe capability and runs
// probes concurrently under a per-probe timeout.
package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Checker is implemented by services that can report their own liveness.
// Services that do not implement it are simply not probed.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Status is the outcome of one probe.
type Status struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail"`
}

// Summary maps a service name to its probe outcome.
type Summary map[string]Status

// Healthy reports whether every probe passed. An empty summary is healthy.
func (s Summary) Healthy() bool {
	for _, st := range s {
		if !st.Healthy {
			return false
		}
	}
	return true
}

// Failing returns the names of unhealthy services, sorted.
func (s Summary) Failing() []string {
	var out []string
	for name, st := range s {
		if !st.Healthy {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Run invokes every probe concurrently, each bounded by timeout. It never
// fails: errors, panics and timeouts become unhealthy statuses.
func Run(ctx context.Context, probes map[string]Checker, timeout time.Duration) Summary {
	summary := make(Summary, len(probes))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for name, probe := range probes {
		g.Go(func() error {
			st := check(gctx, probe, timeout)
			mu.Lock()
			summary[name] = st
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return summary
}

func check(ctx context.Context, probe Checker, timeout time.Duration) Status {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- errors.New("probe panicked")
			}
		}()
		done <- probe.HealthCheck(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return Status{Healthy: false, Detail: err.Error()}
		}
		return Status{Healthy: true, Detail: "ok"}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Status{Healthy: false, Detail: "timed out"}
		}
		return Status{Healthy: false, Detail: ctx.Err().Error()}
	}
}

// Func adapts a plain function to Checker.
type Func func(ctx context.Context) error

func (f Func) HealthCheck(ctx context.Context) error { return f(ctx) }

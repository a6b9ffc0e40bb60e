// Package health probes the backend's liveness on a cron schedule.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule probes every thirty seconds.
const DefaultSchedule = "@every 30s"

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 5 * time.Second

// Pinger checks whether the backend answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is the result of one probe.
type Status struct {
	Reachable bool          `json:"reachable"`
	Error     string        `json:"error,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
	Latency   time.Duration `json:"latency_ns"`
}

// MonitorOpts holds parameters for creating a Monitor.
type MonitorOpts struct {
	Pinger   Pinger
	Schedule string        // cron expression or descriptor; defaults to DefaultSchedule
	Timeout  time.Duration // per-probe bound; defaults to DefaultTimeout
	Logger   *zap.Logger
}

// Monitor runs probes on a schedule and remembers the latest result.
type Monitor struct {
	pinger   Pinger
	schedule cron.Schedule
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.RWMutex
	last    Status
	checked bool
}

// NewMonitor creates a Monitor. The schedule is parsed up front.
func NewMonitor(opts MonitorOpts) (*Monitor, error) {
	if opts.Pinger == nil {
		return nil, fmt.Errorf("health: pinger is required")
	}
	expr := opts.Schedule
	if expr == "" {
		expr = DefaultSchedule
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("health: parse schedule %q: %w", expr, err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		pinger:   opts.Pinger,
		schedule: sched,
		timeout:  timeout,
		logger:   logger.Named("health"),
	}, nil
}

// Check probes the backend now and records the result.
func (m *Monitor) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	err := m.pinger.Ping(ctx)
	st := Status{
		Reachable: err == nil,
		CheckedAt: start,
		Latency:   time.Since(start),
	}
	if err != nil {
		st.Error = err.Error()
	}

	m.mu.Lock()
	changed := !m.checked || m.last.Reachable != st.Reachable
	m.last = st
	m.checked = true
	m.mu.Unlock()

	if changed {
		if st.Reachable {
			m.logger.Info("backend reachable", zap.Duration("latency", st.Latency))
		} else {
			m.logger.Warn("backend unreachable", zap.String("error", st.Error))
		}
	}
	return st
}

// Last returns the most recent result and whether any probe has run.
func (m *Monitor) Last() (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.checked
}

// Start probes once immediately and then on the schedule until ctx is
// canceled. It returns without blocking.
func (m *Monitor) Start(ctx context.Context) {
	c := cron.New()
	c.Schedule(m.schedule, cron.FuncJob(func() { m.Check(ctx) }))
	m.Check(ctx)
	c.Start()

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
}

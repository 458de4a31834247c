package client

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"timed-quiz-service/internal/clock"
)

// Pinger is a cheap reachability probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor tracks whether the service is reachable by probing it on an
// interval. It implements attempt.Connectivity.
type Monitor struct {
	pinger   Pinger
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger

	online atomic.Bool

	mu       sync.Mutex
	ctx      context.Context
	timer    clock.Timer
	stopped  bool
	onChange func(online bool)
}

type MonitorOption func(*Monitor)

func WithMonitorClock(c clock.Clock) MonitorOption { return func(m *Monitor) { m.clock = c } }

func WithMonitorLogger(l *slog.Logger) MonitorOption { return func(m *Monitor) { m.log = l } }

// WithProbeTimeout bounds a single probe.
func WithProbeTimeout(d time.Duration) MonitorOption { return func(m *Monitor) { m.timeout = d } }

func NewMonitor(pinger Pinger, interval time.Duration, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		pinger:   pinger,
		clock:    clock.Real{},
		interval: interval,
		timeout:  2 * time.Second,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) Online() bool { return m.online.Load() }

// OnChange registers fn to run after every transition. It runs on the
// probing goroutine and must not block.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Start probes once synchronously and then keeps probing until Stop or ctx
// is done.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.stopped = false
	m.mu.Unlock()
	m.probe()
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Monitor) probe() {
	m.mu.Lock()
	ctx := m.ctx
	if m.stopped || ctx == nil || ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.pinger.Ping(probeCtx)
	cancel()

	online := err == nil
	changed := m.online.Swap(online) != online
	if changed {
		m.log.Info("connectivity changed", "online", online, "error", err)
	}

	m.mu.Lock()
	onChange := m.onChange
	if !m.stopped && ctx.Err() == nil {
		m.timer = m.clock.AfterFunc(m.interval, m.probe)
	}
	m.mu.Unlock()

	if changed && onChange != nil {
		onChange(online)
	}
}

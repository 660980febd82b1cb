package plugin

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultIdleInterval is how often the idle monitor checks for stuck loads.
const DefaultIdleInterval = 2 * time.Second

// IdleReporter receives the set of paths still pending.
type IdleReporter func(waiting []string)

// IdleMonitor periodically reports plugins stuck in StatePending. It only
// reports; it never cancels or fails a load. Once stopped it cannot be
// restarted.
type IdleMonitor struct {
	mu sync.Mutex

	interval time.Duration
	waiting  func() []string
	report   IdleReporter

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	stopped bool
}

// NewIdleMonitor creates a monitor that polls waiting every interval.
func NewIdleMonitor(interval time.Duration, waiting func() []string, report IdleReporter) *IdleMonitor {
	if interval <= 0 {
		interval = DefaultIdleInterval
	}
	return &IdleMonitor{
		interval: interval,
		waiting:  waiting,
		report:   report,
	}
}

// Start begins monitoring in a background goroutine. It is a no-op if the
// monitor is already running or has been stopped.
func (m *IdleMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.stopped {
		return
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.loop(ctx, m.done)
}

// Stop ends monitoring permanently and waits for the goroutine to exit.
func (m *IdleMonitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Stopped returns true once Stop has been called.
func (m *IdleMonitor) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *IdleMonitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			waiting := m.waiting()
			// Order-sensitive comparison: the same set in another order
			// counts as a change.
			key := strings.Join(waiting, "")
			if key == last {
				continue
			}
			last = key
			if len(waiting) > 0 && m.report != nil {
				m.report(waiting)
			}
		}
	}
}

package alert

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"github.com/chia4/cex-api/internal/logging"
)

const (
	defaultQueueSize          = 128
	defaultDropReportInterval = time.Minute
	defaultSendTimeout        = 20 * time.Second
)

type ManagerOptions struct {
	QueueSize int
	// DropReportInterval is how often dropped alerts are summarised. Zero reports only on Close.
	DropReportInterval time.Duration
	SendTimeout        time.Duration
	Logger             *logrus.Entry
	Now                func() time.Time
}

// Manager queues alerts for a background worker so order paths never wait on the notifier.
// When the queue is full new alerts are dropped and counted.
type Manager struct {
	app         string
	notifier    Notifier
	log         *logrus.Entry
	now         func() time.Time
	sendTimeout time.Duration
	reportEvery time.Duration

	queue    chan Event
	cancel   context.CancelFunc
	workers  conc.WaitGroup
	finished chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped       atomic.Uint64
	droppedWindow atomic.Uint64
}

func NewManager(app string, notifier Notifier) *Manager {
	return NewManagerWithOptions(app, notifier, ManagerOptions{DropReportInterval: defaultDropReportInterval})
}

// NewManagerWithOptions returns nil when notifier is nil; a nil Manager ignores every call.
func NewManagerWithOptions(app string, notifier Notifier, opts ManagerOptions) *Manager {
	if notifier == nil {
		return nil
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	sendTimeout := opts.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		app:         app,
		notifier:    notifier,
		log:         logging.Component(opts.Logger, "alert"),
		now:         now,
		sendTimeout: sendTimeout,
		reportEvery: opts.DropReportInterval,
		queue:       make(chan Event, size),
		cancel:      cancel,
		finished:    make(chan struct{}),
	}
	m.workers.Go(func() { m.deliver(ctx) })
	if m.reportEvery > 0 {
		m.workers.Go(func() { m.reportDrops(ctx) })
	}
	go func() {
		m.workers.Wait()
		close(m.finished)
	}()
	return m
}

func (m *Manager) Important(event string, fields map[string]string) {
	if m == nil {
		return
	}
	ev := Event{Name: event, App: m.app, At: m.now().UTC(), Fields: cloneFields(fields)}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- ev:
	default:
		total := m.dropped.Add(1)
		if m.droppedWindow.Add(1) == 1 {
			m.log.WithFields(logrus.Fields{
				"event":         "alert_queue_dropped",
				"target_event":  event,
				"dropped_total": total,
				"queue_cap":     cap(m.queue),
			}).Warn("alert queue full")
		}
	}
}

// Close stops accepting alerts, delivers everything already queued and waits for the workers.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		m.cancel()
	}
	m.mu.Unlock()

	select {
	case <-m.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) deliver(ctx context.Context) {
	for {
		select {
		case ev := <-m.queue:
			m.send(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-m.queue:
					m.send(ev)
				default:
					m.flushDropReport()
					return
				}
			}
		}
	}
}

func (m *Manager) reportDrops(ctx context.Context) {
	ticker := time.NewTicker(m.reportEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.flushDropReport()
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) flushDropReport() {
	n := m.droppedWindow.Swap(0)
	if n == 0 {
		return
	}
	m.log.WithFields(logrus.Fields{
		"event":         "alert_queue_dropped_report",
		"dropped":       n,
		"dropped_total": m.dropped.Load(),
	}).Warn("alerts dropped")
}

func (m *Manager) droppedStats() (total, window uint64) {
	if m == nil {
		return 0, 0
	}
	return m.dropped.Load(), m.droppedWindow.Load()
}

func (m *Manager) send(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
	defer cancel()
	if err := m.notifier.Notify(ctx, ev.Render()); err != nil {
		m.log.WithFields(logrus.Fields{
			"event":        "alert_notify_failed",
			"target_event": ev.Name,
		}).WithError(err).Error("alert delivery failed")
	}
}

func cloneFields(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

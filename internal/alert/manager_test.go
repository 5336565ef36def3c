package alert

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type notifierSpy struct {
	block   <-chan struct{}
	entered chan struct{}
	once    sync.Once

	mu   sync.Mutex
	msgs []string
}

func (n *notifierSpy) Notify(ctx context.Context, msg string) error {
	if n.entered != nil {
		n.once.Do(func() {
			close(n.entered)
		})
	}
	if n.block != nil {
		select {
		case <-n.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
	return nil
}

func (n *notifierSpy) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

func (n *notifierSpy) first() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.msgs) == 0 {
		return ""
	}
	return n.msgs[0]
}

func closeManager(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Close(ctx))
}

func TestManagerCloseFlushesQueuedEvents(t *testing.T) {
	spy := &notifierSpy{}
	m := NewManager("gate/futures", spy)
	require.NotNil(t, m)

	m.Important("order_unresolved", map[string]string{"contract": "BTC_USDT", "size": "3"})
	m.Important("order_unresolved", map[string]string{"contract": "ETH_USDT"})
	closeManager(t, m)

	require.Equal(t, 2, spy.count())
	msg := spy.first()
	require.True(t, strings.HasPrefix(msg, "[gate/futures] order_unresolved\n"))
	require.Less(t, strings.Index(msg, "contract: BTC_USDT"), strings.Index(msg, "size: 3"))
}

func TestManagerImportantNonBlockingWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	spy := &notifierSpy{
		block:   block,
		entered: make(chan struct{}),
	}
	m := NewManagerWithOptions("mexc/futures", spy, ManagerOptions{QueueSize: 4})
	require.NotNil(t, m)
	m.Important("seed", nil)
	select {
	case <-spy.entered:
	case <-time.After(300 * time.Millisecond):
		t.Fatal("notifier did not enter blocked state")
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			m.Important("spam", map[string]string{"i": "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(300 * time.Millisecond):
		t.Fatal("Important() appears blocked when queue is full")
	}

	total, pending := m.droppedStats()
	require.Greater(t, total, uint64(0))
	require.Equal(t, total, pending)

	close(block)
	closeManager(t, m)
	_, pending = m.droppedStats()
	require.Zero(t, pending)
}

func TestManagerIgnoresEventsAfterClose(t *testing.T) {
	spy := &notifierSpy{}
	m := NewManager("x", spy)
	closeManager(t, m)
	m.Important("late", nil)
	require.Zero(t, spy.count())
	require.NoError(t, m.Close(context.Background()))
}

func TestNilManagerIsSafe(t *testing.T) {
	m := NewManager("x", nil)
	require.Nil(t, m)
	m.Important("ignored", nil)
	require.NoError(t, m.Close(context.Background()))
}

func TestLogAlerterWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	LogAlerter{Log: logrus.NewEntry(logger)}.Important("order_unresolved", map[string]string{"symbol": "BTC_USDT"})
	require.Contains(t, buf.String(), "event=order_unresolved")
	require.Contains(t, buf.String(), "symbol=BTC_USDT")
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, string) error {
	return errors.New("telegram down")
}

func TestManagerLogsDeliveryFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	m := NewManagerWithOptions("cexcheck", failingNotifier{}, ManagerOptions{Logger: logrus.NewEntry(logger)})
	m.Important("order_unresolved", nil)
	closeManager(t, m)
	require.Contains(t, buf.String(), "event=alert_notify_failed")
	require.Contains(t, buf.String(), "target_event=order_unresolved")
}

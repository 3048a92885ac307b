package alert

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"order-lifecycle-go/infrastructure/logger"
)

// mockChannel 记录收到的告警
type mockChannel struct {
	name string
	err  error

	mu     sync.Mutex
	alerts []Alert
}

func (c *mockChannel) Send(a Alert) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	c.alerts = append(c.alerts, a)
	c.mu.Unlock()
	return nil
}

func (c *mockChannel) Name() string { return c.name }

func (c *mockChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func TestSendAlert(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	mgr := NewManager([]Channel{ch}, time.Minute)

	require.NoError(t, mgr.SendWarning("order_rejected", map[string]interface{}{"kind": "limit"}))
	require.Equal(t, 1, ch.count())

	a := ch.alerts[0]
	assert.Equal(t, LevelWarning, a.Level)
	assert.Equal(t, "order_rejected", a.Message)
	assert.Equal(t, "limit", a.Fields["kind"])
	assert.False(t, a.Timestamp.IsZero())
}

func TestThrottling(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	mgr := NewManager([]Channel{ch}, time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, mgr.SendError("store_save_failed", nil))
	}
	assert.Equal(t, 1, ch.count())

	// 不同级别或消息分别限流
	require.NoError(t, mgr.SendWarning("store_save_failed", nil))
	require.NoError(t, mgr.SendError("recover_failed", nil))
	assert.Equal(t, 3, ch.count())

	mgr.ResetThrottle()
	require.NoError(t, mgr.SendError("store_save_failed", nil))
	assert.Equal(t, 4, ch.count())
}

func TestThrottlerInterval(t *testing.T) {
	th := NewThrottler(time.Minute)
	now := time.Unix(1700000000, 0)
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow("k"))
	assert.False(t, th.Allow("k"))
	now = now.Add(59 * time.Second)
	assert.False(t, th.Allow("k"))
	now = now.Add(time.Second)
	assert.True(t, th.Allow("k"))

	assert.True(t, NewThrottler(0).Allow("k"))
}

func TestChannelErrors(t *testing.T) {
	bad := &mockChannel{name: "bad", err: errors.New("boom")}
	good := &mockChannel{name: "good"}

	mgr := NewManager([]Channel{bad, good}, 0)
	require.NoError(t, mgr.SendError("partial", nil))
	assert.Equal(t, 1, good.count())

	mgr = NewManager([]Channel{bad}, 0)
	err := mgr.SendError("all_failed", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel bad failed")
}

func TestAddChannel(t *testing.T) {
	mgr := NewManager(nil, 0)
	assert.Empty(t, mgr.Channels())
	mgr.AddChannel(&mockChannel{name: "a"})
	mgr.AddChannel(&mockChannel{name: "b"})
	assert.Equal(t, []string{"a", "b"}, mgr.Channels())
}

func TestLogChannel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ch := NewLogChannel("log", logger.Wrap(zap.New(core)))
	mgr := NewManager([]Channel{ch}, 0)

	require.NoError(t, mgr.SendError("store_save_failed", map[string]interface{}{"order_key": "k1"}))
	require.NoError(t, mgr.SendWarning("order_rejected", nil))

	entries := logs.FilterMessage("alert").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "store_save_failed", entries[0].ContextMap()["message"])
	assert.Equal(t, "k1", entries[0].ContextMap()["order_key"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestConcurrentAlerts(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	mgr := NewManager([]Channel{ch}, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.SendError("same", nil)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ch.count())
}

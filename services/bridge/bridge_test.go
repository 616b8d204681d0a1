// bridge/bridge_test.go
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wearcode-go/bus"
)

func TestBridge_EstablishesUARTLinkAndReportsState(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("bridge_test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); Start(ctx, conn) }()
	defer func() { cancel(); <-done }()

	stateSub := conn.Subscribe(bus.T("bridge", "state"))
	defer stateSub.Unsubscribe()

	first := nextState(t, stateSub, 500*time.Millisecond)
	assertLevelStatus(t, first, "idle", "awaiting_config")

	prevDial := UARTDial
	defer func() { UARTDial = prevDial }()
	var mu sync.Mutex
	var remote io.ReadWriteCloser
	UARTDial = func(ctx context.Context, _ UARTConfig) (io.ReadWriteCloser, error) {
		lc, rc := net.Pipe()
		mu.Lock()
		remote = rc
		mu.Unlock()
		go drainPeer(rc)
		return lc, nil
	}

	cfg := `{"transport":{"type":"uart","uart":{"baud":115200,"rx_pin":1,"tx_pin":0}}}`
	conn.Publish(conn.NewMessage(bus.T("config", "bridge"), cfg, false))

	up := nextState(t, stateSub, time.Second)
	assertLevelStatus(t, up, "up", "link_established")

	mu.Lock()
	rc := remote
	mu.Unlock()
	require.NotNil(t, rc)
	_ = rc.Close()

	// A forwarded message hits the dead pipe and degrades the link.
	conn.Publish(conn.NewMessage(bus.T("sensor", "imu", "frames"), map[string]any{"seq": 1}, false))

	degraded := nextState(t, stateSub, 10*time.Second)
	assertLevelStatus(t, degraded, "degraded", "link_lost_retrying")
}

func TestBridge_UnknownTransportYieldsErrorState(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("bridge_test_bad")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); Start(ctx, conn) }()
	defer func() { cancel(); <-done }()

	stateSub := conn.Subscribe(bus.T("bridge", "state"))
	defer stateSub.Unsubscribe()

	_ = nextState(t, stateSub, 500*time.Millisecond) // initial awaiting_config

	cfg := `{"transport":{"type":"bogus"}}`
	conn.Publish(conn.NewMessage(bus.T("config", "bridge"), cfg, false))

	errState := nextState(t, stateSub, time.Second)
	assertLevelStatus(t, errState, "error", "transport_init_failed")
}

func TestBridge_ForwardsFramesAsRecords(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("bridge_test_fwd")

	sent := make(chan capturedRecord, 16)
	RegisterTransport("capture", func(TransportConfig) (Transport, error) {
		return &captureTransport{sent: sent}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); Start(ctx, conn) }()
	defer func() { cancel(); <-done }()

	stateSub := conn.Subscribe(bus.T("bridge", "state"))
	defer stateSub.Unsubscribe()
	_ = nextState(t, stateSub, 500*time.Millisecond)

	cfg := `{"transport":{"type":"capture"},"forward":["system/heartbeat"]}`
	conn.Publish(conn.NewMessage(bus.T("config", "bridge"), cfg, false))
	up := nextState(t, stateSub, time.Second)
	assertLevelStatus(t, up, "up", "link_established")

	conn.Publish(conn.NewMessage(bus.T("sensor", "eeg", "frames"), map[string]any{"seq": 7}, false))
	conn.Publish(conn.NewMessage(bus.T("system", "heartbeat"), map[string]any{"uptime_s": 1}, false))

	got := map[string]capturedRecord{}
	for len(got) < 2 {
		select {
		case rec := <-sent:
			got[rec.topic] = rec
		case <-time.After(2 * time.Second):
			t.Fatalf("uplink records missing, have %v", got)
		}
	}

	frame, ok := got["sensor/eeg/frames"]
	require.True(t, ok)
	var r record
	require.NoError(t, json.Unmarshal(frame.body, &r))
	assert.Equal(t, "sensor/eeg/frames", r.Topic)
	assert.NotZero(t, r.TsMs)

	_, ok = got["system/heartbeat"]
	assert.True(t, ok, "extra forward pattern should be honoured")

	// Re-applying config republishes the link state, which carries the
	// cumulative uplink record count.
	conn.Publish(conn.NewMessage(bus.T("config", "bridge"), cfg, false))
	again := nextState(t, stateSub, time.Second)
	assertLevelStatus(t, again, "up", "link_established")
	fwd, ok := again["forwarded"].(uint32)
	require.True(t, ok, "forwarded type %T", again["forwarded"])
	assert.GreaterOrEqual(t, fwd, uint32(1))
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

type capturedRecord struct {
	topic string
	body  []byte
}

type captureTransport struct {
	sent chan capturedRecord
}

func (c *captureTransport) Open(ctx context.Context) (Link, error) {
	return &captureLink{sent: c.sent}, nil
}
func (c *captureTransport) String() string { return "capture" }

type captureLink struct {
	sent   chan capturedRecord
	closed bool
}

func (l *captureLink) Send(topic string, payload []byte) error {
	if l.closed {
		return errors.New("closed")
	}
	l.sent <- capturedRecord{topic: topic, body: payload}
	return nil
}
func (l *captureLink) Ping() error  { return nil }
func (l *captureLink) Close() error { l.closed = true; return nil }

func drainPeer(rc io.ReadWriteCloser) {
	buf := make([]byte, 256)
	for {
		if _, err := rc.Read(buf); err != nil {
			return
		}
	}
}

func nextState(t *testing.T, sub *bus.Subscription, timeout time.Duration) map[string]any {
	t.Helper()
	select {
	case msg := <-sub.Channel():
		payload, ok := msg.Payload.(map[string]any)
		require.True(t, ok, "state payload type %T", msg.Payload)
		return payload
	case <-time.After(timeout):
		t.Fatal("timed out waiting for bridge state")
		return nil
	}
}

func assertLevelStatus(t *testing.T, payload map[string]any, level, status string) {
	t.Helper()
	assert.Equal(t, level, payload["level"])
	assert.Equal(t, status, payload["status"])
}

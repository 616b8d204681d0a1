package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wearcode-go/bus"
	"wearcode-go/services/stream"
	"wearcode-go/spawn"
)

func TestHeartbeat_PublishesRetainedBeat(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("hb_test")
	pool := spawn.NewPool()
	reg := stream.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	svc := New(pool, reg)
	require.NoError(t, svc.Start(ctx, b.NewConnection("heartbeat")))
	defer func() {
		cancel()
		pool.Wait()
	}()

	sub := conn.Subscribe(bus.T("system", "heartbeat"))
	defer sub.Unsubscribe()

	select {
	case msg := <-sub.Channel():
		beat, ok := msg.Payload.(Beat)
		require.True(t, ok, "payload type %T", msg.Payload)
		assert.Zero(t, beat.ActiveStreams)
		// The heartbeat task itself runs on the low tier.
		assert.Equal(t, 1, beat.TasksLow)
	case <-time.After(3 * time.Second):
		t.Fatal("no heartbeat")
	}

	// A late subscriber still sees the retained beat.
	late := conn.Subscribe(bus.T("system", "heartbeat"))
	defer late.Unsubscribe()
	select {
	case msg := <-late.Channel():
		_, ok := msg.Payload.(Beat)
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("retained beat not delivered")
	}
}

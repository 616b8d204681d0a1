// sensors/recorder.go
package sensors

import (
	"context"
	"encoding/json"
	"time"

	"wearcode-go/bus"
	"wearcode-go/services/stream"
	"wearcode-go/spawn"
	"wearcode-go/types"
	"wearcode-go/x/ring"
)

// RecorderConfig selects which kinds are captured into the session ring.
// An empty Sources list captures every frame topic.
type RecorderConfig struct {
	Sources []string `json:"sources"`
	PollMS  uint32   `json:"poll_ms"`
}

// recorderDriver is the one kind with no hardware: its "device" is a set of
// frame subscriptions drained into a length-prefixed ring.
type recorderDriver struct {
	conn *bus.Connection
	ring *ring.Ring

	subs    []*bus.Subscription
	dropped uint32
}

func (d *recorderDriver) Init() error {
	d.ring.Reset()
	d.dropped = 0
	return nil
}

func (d *recorderDriver) Configure(cfg RecorderConfig) error {
	d.unsubscribe()
	if len(cfg.Sources) == 0 {
		d.subs = append(d.subs, d.conn.Subscribe(bus.T("sensor", "+", "frames")))
		return nil
	}
	for _, src := range cfg.Sources {
		d.subs = append(d.subs, d.conn.Subscribe(bus.T("sensor", src, "frames")))
	}
	return nil
}

// Sample drains whatever frames arrived since the last poll. It publishes
// nothing itself; captures go straight into the ring.
func (d *recorderDriver) Sample() (any, error) {
	for _, sub := range d.subs {
	drain:
		for {
			select {
			case msg := <-sub.Channel():
				d.capture(msg)
			default:
				break drain
			}
		}
	}
	return nil, nil
}

func (d *recorderDriver) capture(msg *bus.Message) {
	b, err := json.Marshal(msg.Payload)
	if err != nil {
		println("Warn: recorder: unencodable frame dropped:", err.Error())
		return
	}
	if !d.ring.WriteFrame(b) {
		d.dropped++
		if d.dropped%100 == 1 {
			println("Warn: recorder: ring full,", d.dropped, "frames dropped")
		}
	}
}

func (d *recorderDriver) Shutdown() error {
	d.unsubscribe()
	return nil
}

func (d *recorderDriver) unsubscribe() {
	for _, sub := range d.subs {
		sub.Unsubscribe()
	}
	d.subs = nil
}

// NewRecorder supervises session capture. It rides the same lifecycle as
// the hardware kinds but only holds bus subscriptions, never the I2C bus.
func NewRecorder(ctx context.Context, d Deps) *stream.Supervisor[RecorderConfig] {
	return stream.New(ctx, d.Conn, d.Store, d.Pool, stream.Options[RecorderConfig]{
		Kind:    types.KindRecorder,
		Tier:    spawn.TierMedium,
		Policy:  stream.StartReconfigure,
		Default: RecorderConfig{PollMS: 20},
		Interval: func(cfg RecorderConfig) time.Duration {
			ms := cfg.PollMS
			if ms == 0 {
				ms = 20
			}
			return time.Duration(ms) * time.Millisecond
		},
		Open: func() (stream.Driver[RecorderConfig], func(), error) {
			return &recorderDriver{conn: d.Conn, ring: d.RecRing}, func() {}, nil
		},
	})
}

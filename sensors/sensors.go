// Package sensors binds the chip drivers to the streaming core: one
// supervisor per kind, each with its compiled-in default config, scheduling
// tier, and start policy. Frames land on sensor/<kind>/frames; control
// arrives via sensor/<kind>/control/<method>.
package sensors

import (
	"context"
	"errors"

	"tinygo.org/x/drivers"

	"wearcode-go/bus"
	"wearcode-go/platform"
	"wearcode-go/services/stream"
	"wearcode-go/sharedbus"
	"wearcode-go/spawn"
	"wearcode-go/x/ring"
)

// Deps is everything the kind constructors need from boot wiring.
type Deps struct {
	Conn  *bus.Connection
	Store stream.Store
	Pool  *spawn.Pool
	Board *platform.Board

	// RecRing buffers recorder captures for the uplink flusher.
	RecRing *ring.Ring
}

// acquireI2C hands out the shared controller. The returned release closes
// the handle and then tries an opportunistic teardown: if other kinds still
// hold handles the controller stays up, otherwise its resources come back.
func acquireI2C(b *platform.Board) (drivers.I2C, func(), error) {
	h, err := b.I2C.Acquire()
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		h.Close()
		if err := b.I2C.TryRelease(); err != nil {
			var inUse *sharedbus.InUseError
			if errors.As(err, &inUse) {
				println("Info: sensors: i2c teardown deferred,", inUse.Users, "handles live")
				return
			}
			println("Warn: sensors: i2c teardown failed:", err.Error())
		}
	}
	return h.Bus(), release, nil
}

// NewRegistry builds supervisors for every kind and registers them for
// control dispatch.
func NewRegistry(ctx context.Context, d Deps) *stream.Registry {
	return stream.NewRegistry(
		NewEEG(ctx, d),
		NewIMU(ctx, d),
		NewLight(ctx, d),
		NewHaptic(ctx, d),
		NewMic(ctx, d),
		NewRecorder(ctx, d),
	)
}

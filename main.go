package main

import (
	"context"
	"time"

	"wearcode-go/bus"
	"wearcode-go/platform"
	"wearcode-go/sensors"
	"wearcode-go/services/bridge"
	"wearcode-go/services/heartbeat"
	"wearcode-go/services/profile"
	"wearcode-go/services/stream"
	"wearcode-go/spawn"
	"wearcode-go/x/ring"
)

// Kinds brought up automatically at boot; the rest wait for control
// messages from the companion app.
var autostart = []string{"imu", "light"}

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[main] boot")

	ctx := context.Background()
	b := bus.NewBus(8)
	pool := spawn.NewPool()
	board := platform.NewBoard()
	println("[main] board:", board.Name)

	prof := profile.NewService(b.NewConnection("profile"), profile.NewMemKV())
	pool.Go(spawn.TierMedium, "profile", func() { prof.Run(ctx) })

	reg := sensors.NewRegistry(ctx, sensors.Deps{
		Conn:    b.NewConnection("sensors"),
		Store:   prof,
		Pool:    pool,
		Board:   board,
		RecRing: ring.New(32 * 1024),
	})

	dispConn := b.NewConnection("dispatch")
	pool.Go(spawn.TierMedium, "dispatch", func() { stream.RunDispatcher(ctx, dispConn, reg) })

	_ = heartbeat.New(pool, reg).Start(ctx, b.NewConnection("heartbeat"))
	pool.Go(spawn.TierLow, "bridge", func() { bridge.Start(ctx, b.NewConnection("bridge")) })

	boot := b.NewConnection("boot")
	time.Sleep(100 * time.Millisecond)
	for _, kind := range autostart {
		println("[main] starting", kind)
		boot.Publish(boot.NewMessage(bus.T("sensor", kind, "control", "start"), nil, false))
	}

	select {}
}

// cmd/host-sim/main.go
//
// Runs the full wearable stack on a developer machine against the simulated
// board, optionally uplinking to a local MQTT broker:
//
//	go run ./cmd/host-sim -broker tcp://localhost:1883
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
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

func main() {
	broker := flag.String("broker", "", "MQTT broker URL for the uplink bridge (empty = no uplink)")
	verbose := flag.Bool("v", false, "print every frame topic")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(16)
	pool := spawn.NewPool()
	board, _ := platform.NewSimBoard(0)
	println("[sim] board:", board.Name)

	prof := profile.NewService(b.NewConnection("profile"), profile.NewMemKV())
	pool.Go(spawn.TierMedium, "profile", func() { prof.Run(ctx) })

	reg := sensors.NewRegistry(ctx, sensors.Deps{
		Conn:    b.NewConnection("sensors"),
		Store:   prof,
		Pool:    pool,
		Board:   board,
		RecRing: ring.New(64 * 1024),
	})

	dispConn := b.NewConnection("dispatch")
	pool.Go(spawn.TierMedium, "dispatch", func() { stream.RunDispatcher(ctx, dispConn, reg) })
	_ = heartbeat.New(pool, reg).Start(ctx, b.NewConnection("heartbeat"))
	pool.Go(spawn.TierLow, "bridge", func() { bridge.Start(ctx, b.NewConnection("bridge")) })

	ui := b.NewConnection("ui")
	if *verbose {
		mon := ui.Subscribe(bus.T("sensor", "#"))
		go func() {
			for m := range mon.Channel() {
				printTopic("[monitor] <-", m.Topic)
			}
		}()
	}

	if *broker != "" {
		cfg := bridge.Config{Transport: bridge.TransportConfig{
			Type: "mqtt",
			MQTT: &bridge.MQTTConfig{BrokerURL: *broker, ClientID: "wearcode-sim"},
		}}
		ui.Publish(ui.NewMessage(bus.T("config", "bridge"), cfg, true))
	}

	time.Sleep(100 * time.Millisecond)
	for _, kind := range []string{"eeg", "imu", "light", "recorder"} {
		println("[sim] starting", kind)
		ui.Publish(ui.NewMessage(bus.T("sensor", kind, "control", "start"), nil, false))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	println("[sim] shutting down")
	cancel()
	pool.Wait()
}

func printTopic(prefix string, t bus.Topic) {
	print(prefix)
	print(" ")
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			print("/")
		}
		switch v := t.At(i).(type) {
		case string:
			print(v)
		case int:
			print(v)
		default:
			print("?")
		}
	}
	println()
}

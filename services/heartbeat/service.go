package heartbeat

import (
	"context"
	"time"

	"wearcode-go/bus"
	"wearcode-go/services/stream"
	"wearcode-go/spawn"
	"wearcode-go/x/timex"
)

var topicConfigHeartbeat = bus.T("config", "heartbeat")
var topicHeartbeat = bus.T("system", "heartbeat")

// Beat is the retained liveness snapshot published every interval.
type Beat struct {
	UptimeS       int64 `json:"uptime_s"`
	ActiveStreams int   `json:"active_streams"`
	TasksHigh     int   `json:"tasks_high"`
	TasksMedium   int   `json:"tasks_medium"`
	TasksLow      int   `json:"tasks_low"`
}

type Service struct {
	pool *spawn.Pool
	reg  *stream.Registry
	boot int64
}

func New(pool *spawn.Pool, reg *stream.Registry) *Service {
	return &Service{pool: pool, reg: reg, boot: timex.NowMs()}
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer cfgSub.Unsubscribe()

	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			return
		case <-tick.C:
			s.publish(conn)
		case msg := <-cfgSub.Channel():
			// Change tick interval if needed
			if m, ok := msg.Payload.(map[string]any); ok {
				if iv, ok := m["interval"]; ok {
					if interval, ok := iv.(float64); ok && interval > 0 {
						tick.Reset(time.Duration(interval) * time.Second)
						println("Info: heartbeat interval set to", int(interval), "seconds")
					}
				}
			}
		}
	}
}

func (s *Service) publish(conn *bus.Connection) {
	beat := Beat{
		UptimeS:       (timex.NowMs() - s.boot) / 1000,
		ActiveStreams: s.reg.ActiveCount(),
		TasksHigh:     s.pool.Running(spawn.TierHigh),
		TasksMedium:   s.pool.Running(spawn.TierMedium),
		TasksLow:      s.pool.Running(spawn.TierLow),
	}
	conn.Publish(conn.NewMessage(topicHeartbeat, beat, true))
}

// Start runs the heartbeat service on its own task.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	s.pool.Go(spawn.TierLow, "heartbeat", func() { s.serviceLoop(ctx, conn) })
	return nil
}

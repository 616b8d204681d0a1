// services/stream/supervisor.go
package stream

import (
	"context"
	"sync/atomic"

	"wearcode-go/bus"
	"wearcode-go/errcode"
	"wearcode-go/spawn"
	"wearcode-go/types"
	"wearcode-go/x/timex"
)

// Supervisor is the per-kind façade between high-level commands and one
// worker task. Its event methods never fail: errors are logged, published
// on the status topic, and absorbed.
//
// At most one worker runs per kind, guaranteed by a check-then-set on the
// active flag. Stop and reconfigure requests travel through a single-slot
// mailbox, so the worker only ever sees the latest request.
type Supervisor[C any] struct {
	opts  Options[C]
	ctx   context.Context // process-lifetime context for worker cancellation
	conn  *bus.Connection
	store Store
	pool  *spawn.Pool

	active atomic.Bool
	box    *Mailbox[command[C]]
}

// New builds a supervisor. ctx bounds every worker it ever spawns.
func New[C any](ctx context.Context, conn *bus.Connection, store Store, pool *spawn.Pool, opts Options[C]) *Supervisor[C] {
	opts.setDefaults()
	return &Supervisor[C]{
		opts:  opts,
		ctx:   ctx,
		conn:  conn,
		store: store,
		pool:  pool,
		box:   NewMailbox[command[C]](),
	}
}

func (s *Supervisor[C]) Kind() types.Kind { return s.opts.Kind }

// Active reports whether a worker is currently running.
func (s *Supervisor[C]) Active() bool { return s.active.Load() }

// Start spawns a worker with cfg, the persisted profile config, or the
// compiled-in default (persisting the default for next time). While
// already running, behavior follows the kind's StartPolicy.
func (s *Supervisor[C]) Start(cfg *C) {
	if !s.active.CompareAndSwap(false, true) {
		if s.opts.Policy == StartReconfigure && cfg != nil {
			s.Reconfigure(*cfg)
			return
		}
		println("Info: stream:", string(s.opts.Kind), "already running, start ignored")
		return
	}

	// A stop or reconfigure aimed at the previous worker can land in the
	// mailbox after that worker's cleanup reset it. Winning the CAS fences
	// the old worker out, so anything still in the box is stale.
	s.box.Reset()

	resolved := s.resolveConfig(cfg)
	s.publishStatus(true, "")
	s.pool.Go(s.opts.Tier, string(s.opts.Kind), func() {
		s.run(resolved)
	})
}

// Reconfigure hands the live worker a new configuration without stopping
// the stream. Superseded by any later request.
func (s *Supervisor[C]) Reconfigure(cfg C) {
	if !s.active.Load() {
		println("Info: stream:", string(s.opts.Kind), "not running, reconfigure ignored")
		return
	}
	s.box.Put(command[C]{cfg: cfg})
}

// Stop asks the worker to terminate. Idle is reached once the worker has
// run its cleanup and cleared the active flag.
func (s *Supervisor[C]) Stop() {
	if !s.active.Load() {
		println("Info: stream:", string(s.opts.Kind), "not running, stop ignored")
		return
	}
	s.box.Put(command[C]{stop: true})
}

// ConfigChanged re-reads the now-current profile's config and applies it
// through the reconfiguration path. Called on profile switches.
func (s *Supervisor[C]) ConfigChanged() {
	if !s.active.Load() || s.store == nil {
		return
	}
	var c C
	if !s.store.GetConfig(s.opts.Kind, &c) {
		return
	}
	s.box.Put(command[C]{cfg: c})
}

// HandleEvent is the type-erased control surface used by the dispatcher.
// Unknown methods and undecodable payloads are logged and dropped.
func (s *Supervisor[C]) HandleEvent(method string, payload any) {
	switch method {
	case "start":
		if payload == nil {
			s.Start(nil)
			return
		}
		var c C
		if err := decodeJSON(payload, &c); err != nil {
			println("Warn: stream:", string(s.opts.Kind), "bad start payload:", err.Error())
			return
		}
		s.Start(&c)
	case "reconfigure":
		var c C
		if err := decodeJSON(payload, &c); err != nil {
			println("Warn: stream:", string(s.opts.Kind), "bad reconfigure payload:", err.Error())
			return
		}
		s.Reconfigure(c)
	case "stop":
		s.Stop()
	default:
		println("Warn: stream:", string(s.opts.Kind), "unknown control method:", method)
	}
}

func (s *Supervisor[C]) resolveConfig(cfg *C) C {
	if cfg != nil {
		return *cfg
	}
	if s.store != nil {
		var c C
		if s.store.GetConfig(s.opts.Kind, &c) {
			return c
		}
	}
	c := s.opts.Default
	if s.store != nil {
		if err := s.store.SaveConfig(s.opts.Kind, c); err != nil {
			println("Warn: stream:", string(s.opts.Kind), "persist default config failed:", err.Error())
		}
	}
	return c
}

func (s *Supervisor[C]) publishStatus(streaming bool, code errcode.Code) {
	st := types.StreamStatus{Streaming: streaming, TsMs: timex.NowMs()}
	if code != "" && code != errcode.OK {
		st.Error = string(code)
	}
	s.conn.Publish(s.conn.NewMessage(statusTopic(s.opts.Kind), st, true))
}

func statusTopic(kind types.Kind) bus.Topic {
	return bus.T("sensor", string(kind), "status")
}

func framesTopic(kind types.Kind) bus.Topic {
	return bus.T("sensor", string(kind), "frames")
}

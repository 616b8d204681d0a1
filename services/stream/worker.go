// services/stream/worker.go
package stream

import (
	"time"

	"wearcode-go/errcode"
	"wearcode-go/types"
	"wearcode-go/x/mathx"
	"wearcode-go/x/timex"
)

// run is the worker task body: acquire the shared bus, bring the device
// up, then race the command mailbox against data readiness until stopped
// or broken by a hardware error.
func (s *Supervisor[C]) run(cfg C) {
	kind := string(s.opts.Kind)

	drv, release, err := s.opts.Open()
	if err != nil {
		println("Error: stream:", kind, "bus acquire failed:", err.Error())
		s.box.Reset()
		s.publishStatus(false, errcode.Of(err))
		s.active.Store(false)
		return
	}
	// Cleanup order: the off status goes out before the flag clears, so a
	// racing restart cannot publish its on status first. Deferred LIFO
	// gives release() the last word.
	var errLoop errcode.Code
	defer release()
	defer func() {
		s.box.Reset()
		s.publishStatus(false, errLoop)
		s.active.Store(false)
	}()

	s.initDevice(drv)

	if err := drv.Configure(cfg); err != nil {
		println("Warn: stream:", kind, "initial configure failed:", err.Error())
	}

	if err := s.loop(drv, cfg); err != nil {
		println("Error: stream:", kind, "stream broken:", err.Error())
		errLoop = errcode.Of(err)
	}

	if err := drv.Shutdown(); err != nil {
		println("Warn: stream:", kind, "shutdown failed:", err.Error())
	}
}

// initDevice retries Init a fixed number of times with a fixed delay.
// Exhausted retries do not abort the worker: the sampling loop surfaces
// per-read errors from a dead device.
func (s *Supervisor[C]) initDevice(drv Driver[C]) {
	var err error
	for i := 0; i < s.opts.InitRetries; i++ {
		if err = drv.Init(); err == nil {
			return
		}
		if !sleep(s.ctx, s.opts.InitRetryDelay) {
			return
		}
	}
	println("Warn: stream:", string(s.opts.Kind), "device init exhausted retries:", err.Error())
}

// loop processes commands and samples until a stop, a cancelled context,
// or a hardware error. The mailbox is drained first on every pass, so a
// stop or reconfigure is never starved by a continuously-ready device.
func (s *Supervisor[C]) loop(drv Driver[C], cfg C) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	drainTimer(timer)

	var ready <-chan struct{}
	if n, ok := drv.(Notifier); ok {
		ready = n.Ready()
	}

	interval := s.interval(cfg)
	var seq uint32

	for {
		if cmd, ok := s.box.Take(); ok {
			if cmd.stop {
				return nil
			}
			if err := s.applyConfig(drv, cmd.cfg); err != nil {
				return err
			}
			cfg = cmd.cfg
			interval = s.interval(cfg)
			continue
		}

		var tick <-chan time.Time
		if ready == nil && interval > 0 {
			resetTimer(timer, interval)
			tick = timer.C
		}

		select {
		case <-s.ctx.Done():
			return nil
		case <-s.box.Ready():
			// Handled by Take on the next pass.
		case <-ready:
			if err := s.sampleOnce(drv, &seq); err != nil {
				return err
			}
		case <-tick:
			if err := s.sampleOnce(drv, &seq); err != nil {
				return err
			}
		}
	}
}

// applyConfig reconfigures in place, or restarts the device under the
// same task and bus handle for kinds whose hardware cannot.
func (s *Supervisor[C]) applyConfig(drv Driver[C], cfg C) error {
	if s.opts.RestartOnReconfigure {
		if err := drv.Shutdown(); err != nil {
			println("Warn: stream:", string(s.opts.Kind), "restart shutdown failed:", err.Error())
		}
		s.initDevice(drv)
	}
	return drv.Configure(cfg)
}

func (s *Supervisor[C]) sampleOnce(drv Driver[C], seq *uint32) error {
	payload, err := drv.Sample()
	if err != nil {
		return err
	}
	if payload == nil {
		return nil
	}
	*seq++
	// Non-blocking publish: slow consumers lose the oldest frame.
	s.conn.Publish(s.conn.NewMessage(framesTopic(s.opts.Kind), types.Frame{
		Kind:    s.opts.Kind,
		Seq:     *seq,
		TsMs:    timex.NowMs(),
		Payload: payload,
	}, false))
	return nil
}

func (s *Supervisor[C]) interval(cfg C) time.Duration {
	if s.opts.Interval == nil {
		return 0
	}
	d := s.opts.Interval(cfg)
	if d <= 0 {
		return 0
	}
	return mathx.Clamp(d, time.Millisecond, time.Hour)
}

// services/stream/supervisor_test.go
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"wearcode-go/bus"
	"wearcode-go/spawn"
	"wearcode-go/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testCfg struct {
	RateHz uint32 `json:"rate_hz"`
	Gain   int    `json:"gain"`
}

// fakeDriver records lifecycle calls and can fail Init and Sample.
type fakeDriver struct {
	mu        sync.Mutex
	initFails int // fail this many Init calls before succeeding
	failAfter int // Sample error once this many samples were taken (0 = never)

	inits     int
	shutdowns int
	samples   int
	cfgs      []testCfg
}

func (d *fakeDriver) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inits++
	if d.inits <= d.initFails {
		return errors.New("no ack")
	}
	return nil
}

func (d *fakeDriver) Configure(cfg testCfg) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfgs = append(d.cfgs, cfg)
	return nil
}

func (d *fakeDriver) Sample() (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.samples++
	if d.failAfter > 0 && d.samples > d.failAfter {
		return nil, errors.New("bus fault")
	}
	return map[string]any{"n": d.samples}, nil
}

func (d *fakeDriver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shutdowns++
	return nil
}

func (d *fakeDriver) snapshot() (inits, shutdowns, samples int, cfgs []testCfg) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inits, d.shutdowns, d.samples, append([]testCfg(nil), d.cfgs...)
}

// memStore is a JSON-backed in-memory profile store.
type memStore struct {
	mu   sync.Mutex
	data map[types.Kind][]byte
}

func newMemStore() *memStore { return &memStore{data: map[types.Kind][]byte{}} }

func (s *memStore) GetConfig(kind types.Kind, out any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[kind]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func (s *memStore) SaveConfig(kind types.Kind, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[kind] = raw
	s.mu.Unlock()
	return nil
}

type harness struct {
	sup     *Supervisor[testCfg]
	drv     *fakeDriver
	store   *memStore
	pool    *spawn.Pool
	conn    *bus.Connection
	mu      sync.Mutex
	opens   int
	closes  int
	openErr error
}

func newHarness(t *testing.T, mutate func(*Options[testCfg])) *harness {
	t.Helper()
	h := &harness{
		drv:   &fakeDriver{},
		store: newMemStore(),
		pool:  spawn.NewPool(),
	}
	b := bus.NewBus(16)
	h.conn = b.NewConnection("test")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		h.pool.Wait()
	})

	opts := Options[testCfg]{
		Kind:           types.KindIMU,
		Tier:           spawn.TierHigh,
		Default:        testCfg{RateHz: 100, Gain: 1},
		Interval:       func(c testCfg) time.Duration { return time.Millisecond },
		InitRetries:    3,
		InitRetryDelay: time.Millisecond,
		Open: func() (Driver[testCfg], func(), error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			if h.openErr != nil {
				return nil, nil, h.openErr
			}
			h.opens++
			return h.drv, func() {
				h.mu.Lock()
				h.closes++
				h.mu.Unlock()
			}, nil
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.sup = New(ctx, h.conn, h.store, h.pool, opts)
	return h
}

func (h *harness) openCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opens
}

func (h *harness) closeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for " + what)
		}
		time.Sleep(time.Millisecond)
	}
}

func nextStatus(t *testing.T, sub *bus.Subscription) types.StreamStatus {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m.Payload.(types.StreamStatus)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for status broadcast")
		return types.StreamStatus{}
	}
}

func TestStartStop_Scenario(t *testing.T) {
	h := newHarness(t, nil)
	statusSub := h.conn.Subscribe(statusTopic(types.KindIMU))
	framesSub := h.conn.Subscribe(framesTopic(types.KindIMU))

	h.sup.Start(nil)

	if st := nextStatus(t, statusSub); !st.Streaming {
		t.Fatal("expected streaming=true broadcast")
	}
	if !h.sup.Active() {
		t.Fatal("active flag must be set")
	}

	// No persisted config: the compiled-in default is persisted.
	var saved testCfg
	waitFor(t, "default persisted", func() bool { return h.store.GetConfig(types.KindIMU, &saved) })
	if saved != (testCfg{RateHz: 100, Gain: 1}) {
		t.Fatalf("persisted config: %+v", saved)
	}

	select {
	case m := <-framesSub.Channel():
		f := m.Payload.(types.Frame)
		if f.Kind != types.KindIMU || f.Seq == 0 {
			t.Fatalf("bad frame: %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frames")
	}

	h.sup.Stop()
	waitFor(t, "worker exit", func() bool { return !h.sup.Active() })

	// Drain to the final off broadcast.
	var st types.StreamStatus
	for st = nextStatus(t, statusSub); st.Streaming; st = nextStatus(t, statusSub) {
	}
	if st.Error != "" {
		t.Fatalf("clean stop must not report an error, got %q", st.Error)
	}

	waitFor(t, "handle released", func() bool { return h.closeCount() == 1 })
	_, shutdowns, _, _ := h.drv.snapshot()
	if shutdowns != 1 {
		t.Fatalf("shutdowns: got %d, want 1", shutdowns)
	}
}

func TestStart_AtMostOneWorker(t *testing.T) {
	h := newHarness(t, nil)

	h.sup.Start(nil)
	h.sup.Start(nil)
	h.sup.Start(nil)

	waitFor(t, "worker open", func() bool { return h.openCount() == 1 })
	time.Sleep(20 * time.Millisecond)
	if got := h.openCount(); got != 1 {
		t.Fatalf("opens: got %d, want 1", got)
	}

	h.sup.Stop()
	waitFor(t, "worker exit", func() bool { return !h.sup.Active() })
}

func TestStart_ReconfigurePolicy(t *testing.T) {
	h := newHarness(t, func(o *Options[testCfg]) { o.Policy = StartReconfigure })

	h.sup.Start(nil)
	waitFor(t, "worker open", func() bool { return h.openCount() == 1 })

	h.sup.Start(&testCfg{RateHz: 250, Gain: 4})

	waitFor(t, "implicit reconfigure", func() bool {
		_, _, _, cfgs := h.drv.snapshot()
		for _, c := range cfgs {
			if c.RateHz == 250 && c.Gain == 4 {
				return true
			}
		}
		return false
	})
	if got := h.openCount(); got != 1 {
		t.Fatalf("opens: got %d, want 1", got)
	}

	h.sup.Stop()
	waitFor(t, "worker exit", func() bool { return !h.sup.Active() })
}

func TestReconfigure_InPlace(t *testing.T) {
	h := newHarness(t, nil)
	h.sup.Start(nil)
	waitFor(t, "worker open", func() bool { return h.openCount() == 1 })

	h.sup.Reconfigure(testCfg{RateHz: 50, Gain: 8})
	waitFor(t, "reconfigure applied", func() bool {
		_, _, _, cfgs := h.drv.snapshot()
		return len(cfgs) >= 2 && cfgs[len(cfgs)-1] == testCfg{RateHz: 50, Gain: 8}
	})

	inits, shutdowns, _, _ := h.drv.snapshot()
	if inits != 1 || shutdowns != 0 {
		t.Fatalf("in-place reconfigure must not restart: inits=%d shutdowns=%d", inits, shutdowns)
	}

	h.sup.Stop()
	waitFor(t, "worker exit", func() bool { return !h.sup.Active() })
}

func TestReconfigure_RestartingKind(t *testing.T) {
	h := newHarness(t, func(o *Options[testCfg]) { o.RestartOnReconfigure = true })
	h.sup.Start(nil)
	waitFor(t, "worker open", func() bool { return h.openCount() == 1 })

	h.sup.Reconfigure(testCfg{RateHz: 16000, Gain: 2})
	waitFor(t, "restart reconfigure", func() bool {
		inits, shutdowns, _, cfgs := h.drv.snapshot()
		return inits == 2 && shutdowns == 1 && len(cfgs) >= 2
	})
	if got := h.openCount(); got != 1 {
		t.Fatal("restart must keep the same bus handle and task")
	}

	h.sup.Stop()
	waitFor(t, "worker exit", func() bool { return !h.sup.Active() })
}

func TestInit_BoundedRetry(t *testing.T) {
	h := newHarness(t, nil)
	h.drv.initFails = 2

	h.sup.Start(nil)
	waitFor(t, "init retried", func() bool {
		inits, _, _, _ := h.drv.snapshot()
		return inits == 3
	})

	h.sup.Stop()
	waitFor(t, "worker exit", func() bool { return !h.sup.Active() })
}

func TestInit_ExhaustedStillSamples(t *testing.T) {
	h := newHarness(t, nil)
	h.drv.initFails = 100

	h.sup.Start(nil)
	waitFor(t, "sampling despite dead init", func() bool {
		inits, _, samples, _ := h.drv.snapshot()
		return inits == 3 && samples > 0
	})

	h.sup.Stop()
	waitFor(t, "worker exit", func() bool { return !h.sup.Active() })
}

func TestSampleError_EndsWorker(t *testing.T) {
	h := newHarness(t, nil)
	h.drv.failAfter = 2
	statusSub := h.conn.Subscribe(statusTopic(types.KindIMU))

	h.sup.Start(nil)
	waitFor(t, "worker death", func() bool { return !h.sup.Active() })

	var st types.StreamStatus
	for st = nextStatus(t, statusSub); st.Streaming; st = nextStatus(t, statusSub) {
	}
	if st.Error == "" {
		t.Fatal("status must carry the failure code")
	}

	waitFor(t, "handle released", func() bool { return h.closeCount() == 1 })
	_, shutdowns, _, _ := h.drv.snapshot()
	if shutdowns != 1 {
		t.Fatalf("cleanup must still run shutdown, got %d", shutdowns)
	}
}

func TestConfigChanged_AppliesCurrentProfile(t *testing.T) {
	h := newHarness(t, nil)
	h.sup.Start(nil)
	waitFor(t, "worker open", func() bool { return h.openCount() == 1 })

	if err := h.store.SaveConfig(types.KindIMU, testCfg{RateHz: 10, Gain: 7}); err != nil {
		t.Fatal(err)
	}
	h.sup.ConfigChanged()

	waitFor(t, "profile config applied", func() bool {
		_, _, _, cfgs := h.drv.snapshot()
		return len(cfgs) >= 2 && cfgs[len(cfgs)-1] == testCfg{RateHz: 10, Gain: 7}
	})

	h.sup.Stop()
	waitFor(t, "worker exit", func() bool { return !h.sup.Active() })
}

func TestStart_DiscardsStaleCommand(t *testing.T) {
	h := newHarness(t, nil)

	// A stop aimed at an earlier worker can land after that worker's
	// cleanup and sit in the mailbox. The next start must not consume it.
	h.sup.box.Put(command[testCfg]{stop: true})

	framesSub := h.conn.Subscribe(framesTopic(types.KindIMU))
	h.sup.Start(nil)

	select {
	case <-framesSub.Channel():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frames")
	}
	if !h.sup.Active() {
		t.Fatal("worker must survive a stale stop")
	}

	h.sup.Stop()
	waitFor(t, "worker exit", func() bool { return !h.sup.Active() })
}

func TestRestart_AfterStopRacesWorkerDeath(t *testing.T) {
	h := newHarness(t, nil)
	h.drv.failAfter = 1

	// Race concurrent stops against workers dying of sample errors; any
	// of the stops may land in the mailbox after the worker's cleanup.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		h.sup.Start(nil)
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.sup.Stop()
		}()
		waitFor(t, "worker exit", func() bool { return !h.sup.Active() })
	}
	wg.Wait()

	h.drv.mu.Lock()
	h.drv.failAfter = 0
	h.drv.samples = 0
	h.drv.mu.Unlock()

	h.sup.Start(nil)
	waitFor(t, "streaming after races", func() bool {
		_, _, samples, _ := h.drv.snapshot()
		return samples > 2
	})
	if !h.sup.Active() {
		t.Fatal("worker must still be running")
	}

	h.sup.Stop()
	waitFor(t, "worker exit", func() bool { return !h.sup.Active() })
}

func TestOpenFailure_ClearsActive(t *testing.T) {
	h := newHarness(t, nil)
	h.openErr = errors.New("i2c controller fault")

	h.sup.Start(nil)
	waitFor(t, "activity cleared", func() bool { return !h.sup.Active() })
	if h.closeCount() != 0 {
		t.Fatal("no handle to release on open failure")
	}

	// The supervisor is startable again after the failure.
	h.mu.Lock()
	h.openErr = nil
	h.mu.Unlock()
	h.sup.Start(nil)
	waitFor(t, "second start", func() bool { return h.openCount() == 1 })
	h.sup.Stop()
	waitFor(t, "worker exit", func() bool { return !h.sup.Active() })
}

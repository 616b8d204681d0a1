// bridge/bridge.go
//
// The bridge forwards sensor traffic to an off-device consumer over a
// pluggable transport. It listens for JSON config on "config/bridge" and
// (re)configures the link; link loss degrades and reconnects with backoff
// while the on-device pipeline keeps running.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"wearcode-go/bus"
	"wearcode-go/x/timex"
)

// Start runs the bridge service. It blocks until ctx is cancelled.
func Start(ctx context.Context, conn *bus.Connection) {
	s := &Service{
		conn:       conn,
		stateTopic: bus.T("bridge", "state"),
	}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is the JSON-encoded configuration expected on "config/bridge".
type Config struct {
	Transport TransportConfig `json:"transport"`

	// Forward lists extra topic patterns to uplink on top of the sensor
	// defaults, slash-separated ("system/heartbeat", "bridge/#").
	Forward []string `json:"forward,omitempty"`
}

type TransportConfig struct {
	// "uart" (built in) or names registered via RegisterTransport
	// ("mqtt" on hosts).
	Type string      `json:"type"`
	UART *UARTConfig `json:"uart,omitempty"`
	MQTT *MQTTConfig `json:"mqtt,omitempty"`
}

// UARTConfig carries enough for the injected dialler to open the UART.
type UARTConfig struct {
	Port  string `json:"port"` // "uart0" or "uart1"
	Baud  int    `json:"baud"`
	RxPin int    `json:"rx_pin"`
	TxPin int    `json:"tx_pin"`
}

// MQTTConfig points the host transport at a broker.
type MQTTConfig struct {
	BrokerURL   string `json:"broker_url"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix,omitempty"`
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn       *bus.Connection
	stateTopic bus.Topic

	mu     sync.Mutex
	curRun context.CancelFunc
	wg     sync.WaitGroup

	forwarded atomic.Uint32
}

func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.T("config", "bridge"))
	defer cfgSub.Unsubscribe()

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			s.wg.Wait()
			return
		case msg := <-cfgSub.Channel():
			var cfg Config
			if err := decodeConfig(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.mu.Lock()
	if s.curRun != nil {
		s.curRun()
	}
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLink(ctx, cfg)
	}()
}

// -----------------------------------------------------------------------------
// Link supervision and forwarding
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg Config) {
	tr, err := newTransport(cfg.Transport)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		link, err := tr.Open(ctx)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		err = s.forward(ctx, cfg, link)
		_ = link.Close()
		if err == nil {
			// Clean shutdown: restart only on new config.
			return
		}
		delay := backoff()
		s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
		if !sleep(ctx, delay) {
			return
		}
	}
}

// forward owns the active link lifetime: every matching bus message goes
// uplink as one JSON record. A send failure surfaces as a link error.
func (s *Service) forward(ctx context.Context, cfg Config, link Link) error {
	patterns := []bus.Topic{
		bus.T("sensor", "+", "frames"),
		bus.T("sensor", "+", "status"),
	}
	for _, p := range cfg.Forward {
		patterns = append(patterns, parsePattern(p))
	}

	subs := make([]*bus.Subscription, 0, len(patterns))
	agg := make(chan *bus.Message, 16)
	fwdCtx, cancel := context.WithCancel(ctx)
	var pumps sync.WaitGroup
	// Teardown order: stop the pumps, join them, then drop subscriptions.
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()
	defer pumps.Wait()
	defer cancel()
	for _, p := range patterns {
		sub := s.conn.Subscribe(p)
		subs = append(subs, sub)
		pumps.Add(1)
		go func(sub *bus.Subscription) {
			defer pumps.Done()
			for {
				select {
				case <-fwdCtx.Done():
					return
				case msg := <-sub.Channel():
					select {
					case agg <- msg:
					case <-fwdCtx.Done():
						return
					}
				}
			}
		}(sub)
	}

	ping := time.NewTicker(5 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ping.C:
			if err := link.Ping(); err != nil {
				return err
			}
		case msg := <-agg:
			rec, err := encodeRecord(msg)
			if err != nil {
				println("Warn: bridge: unencodable message dropped:", err.Error())
				continue
			}
			if err := link.Send(topicString(msg.Topic), rec); err != nil {
				return err
			}
			s.forwarded.Add(1)
		}
	}
}

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Link is one open uplink connection.
type Link interface {
	Send(topic string, payload []byte) error
	// Ping verifies liveness on idle links. Errors trigger a reconnect.
	Ping() error
	Close() error
}

// Transport is a pluggable link dialler.
type Transport interface {
	Open(ctx context.Context) (Link, error)
	String() string
}

type transportFactory func(TransportConfig) (Transport, error)

var (
	regMu    sync.RWMutex
	registry = map[string]transportFactory{}
)

// RegisterTransport lets platform builds add transports ("mqtt", "tcp").
func RegisterTransport(name string, f transportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func newTransport(cfg TransportConfig) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Type]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Type {
	case "uart":
		return newUARTTransport(cfg)
	default:
		return nil, fmt.Errorf("unknown transport type: %q", cfg.Type)
	}
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

// record is the uplink wire shape shared by all transports.
type record struct {
	Topic   string `json:"topic"`
	TsMs    int64  `json:"ts_ms"`
	Payload any    `json:"payload"`
}

func encodeRecord(msg *bus.Message) ([]byte, error) {
	return json.Marshal(record{
		Topic:   topicString(msg.Topic),
		TsMs:    timex.NowMs(),
		Payload: msg.Payload,
	})
}

func topicString(t bus.Topic) string {
	out := ""
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			out += "/"
		}
		out += fmt.Sprintf("%v", t.At(i))
	}
	return out
}

func parsePattern(s string) bus.Topic {
	toks := []any{}
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '/' {
			if i > start {
				toks = append(toks, s[start:i])
			}
			start = i + 1
		}
	}
	return bus.T(toks...)
}

func decodeConfig(p any, cfg *Config) error {
	switch v := p.(type) {
	case []byte:
		return json.Unmarshal(v, cfg)
	case string:
		return json.Unmarshal([]byte(v), cfg)
	case Config:
		*cfg = v
		return nil
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, cfg)
	default:
		return fmt.Errorf("unsupported config payload type: %T", p)
	}
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":     level, // "up", "degraded", "error", "idle"
		"status":    status,
		"ts_ms":     timex.NowMs(),
		"forwarded": s.forwarded.Load(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(s.stateTopic, payload, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

var errNoDial = errors.New("bridge: uart dialler not wired")

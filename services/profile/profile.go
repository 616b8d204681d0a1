// services/profile/profile.go
package profile

import (
	"context"
	"encoding/json"
	"sync"

	"wearcode-go/bus"
	"wearcode-go/errcode"
	"wearcode-go/types"
)

// -----------------------------------------------------------------------------
// Persistence boundary
// -----------------------------------------------------------------------------

// KV is the persisted key-value codec boundary. The flash encoding itself
// is owned by the storage layer; this service only gets/sets raw JSON.
type KV interface {
	Load(key string) ([]byte, bool)
	Store(key string, val []byte) error
}

// MemKV is the in-memory KV used on hosts and in tests.
type MemKV struct {
	mu sync.Mutex
	m  map[string][]byte
}

func NewMemKV() *MemKV { return &MemKV{m: map[string][]byte{}} }

func (kv *MemKV) Load(key string) ([]byte, bool) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.m[key]
	return v, ok
}

func (kv *MemKV) Store(key string, val []byte) error {
	kv.mu.Lock()
	kv.m[key] = append([]byte(nil), val...)
	kv.mu.Unlock()
	return nil
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

const (
	selectorKey    = "profile.current"
	defaultProfile = "default"
)

// Service scopes per-kind sensor configs to a current profile and
// broadcasts the selector and configs as retained messages.
type Service struct {
	conn *bus.Connection
	kv   KV

	mu      sync.Mutex
	current string
}

func NewService(conn *bus.Connection, kv KV) *Service {
	s := &Service{conn: conn, kv: kv, current: defaultProfile}
	if raw, ok := kv.Load(selectorKey); ok && len(raw) > 0 {
		s.current = string(raw)
	}
	return s
}

// Current returns the active profile name.
func (s *Service) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// GetConfig decodes the current profile's config for kind into out.
func (s *Service) GetConfig(kind types.Kind, out any) bool {
	raw, ok := s.kv.Load(s.key(kind))
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		println("Warn: profile: corrupt config for", string(kind), ":", err.Error())
		return false
	}
	return true
}

// SaveConfig persists v under the current profile and republishes the
// retained config topic.
func (s *Service) SaveConfig(kind types.Kind, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return &errcode.E{C: errcode.InvalidConfig, Op: "profile.SaveConfig", Err: err}
	}
	if err := s.kv.Store(s.key(kind), raw); err != nil {
		return err
	}
	s.conn.Publish(s.conn.NewMessage(bus.T("config", string(kind)), raw, true))
	return nil
}

// Switch activates another profile, persists the selector, and broadcasts
// the retained profile/current message that fans out ConfigChanged.
func (s *Service) Switch(name string) {
	if name == "" {
		println("Warn: profile: empty profile name ignored")
		return
	}
	s.mu.Lock()
	if s.current == name {
		s.mu.Unlock()
		return
	}
	s.current = name
	s.mu.Unlock()

	if err := s.kv.Store(selectorKey, []byte(name)); err != nil {
		println("Warn: profile: persist selector failed:", err.Error())
	}
	s.publishConfigs()
	s.conn.Publish(s.conn.NewMessage(bus.T("profile", "current"), name, true))
}

// Run publishes the boot-time selector and serves switch requests until
// ctx is done.
func (s *Service) Run(ctx context.Context) {
	s.publishConfigs()
	s.conn.Publish(s.conn.NewMessage(bus.T("profile", "current"), s.Current(), true))

	ctrlSub := s.conn.Subscribe(bus.T("profile", "control", "switch"))
	defer s.conn.Unsubscribe(ctrlSub)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ctrlSub.Channel():
			name, ok := msg.Payload.(string)
			if !ok {
				s.conn.Reply(msg, types.ErrorReply{OK: false, Error: string(errcode.InvalidPayload)}, false)
				continue
			}
			s.Switch(name)
			s.conn.Reply(msg, types.OKReply{OK: true}, false)
		}
	}
}

// publishConfigs republishes every known kind's retained config for the
// active profile. Kinds without a persisted config clear their topic.
func (s *Service) publishConfigs() {
	for _, kind := range []types.Kind{
		types.KindEEG, types.KindIMU, types.KindLight,
		types.KindHaptic, types.KindMic, types.KindRecorder,
	} {
		if raw, ok := s.kv.Load(s.key(kind)); ok {
			s.conn.Publish(s.conn.NewMessage(bus.T("config", string(kind)), raw, true))
		} else {
			s.conn.Publish(s.conn.NewMessage(bus.T("config", string(kind)), nil, true))
		}
	}
}

func (s *Service) key(kind types.Kind) string {
	return "profile." + s.Current() + "." + string(kind)
}

// services/stream/dispatch.go
package stream

import (
	"context"

	"wearcode-go/bus"
	"wearcode-go/errcode"
	"wearcode-go/types"
)

// Controllable is the type-erased supervisor surface the dispatcher and
// registry work with.
type Controllable interface {
	Kind() types.Kind
	Active() bool
	HandleEvent(method string, payload any)
	ConfigChanged()
}

// Registry holds the per-kind supervisor handles, constructed once at
// startup and passed to every collaborator.
type Registry struct {
	order  []types.Kind
	byKind map[types.Kind]Controllable
}

func NewRegistry(sups ...Controllable) *Registry {
	r := &Registry{byKind: make(map[types.Kind]Controllable, len(sups))}
	for _, s := range sups {
		if _, dup := r.byKind[s.Kind()]; dup {
			panic("stream: duplicate supervisor for kind " + string(s.Kind()))
		}
		r.byKind[s.Kind()] = s
		r.order = append(r.order, s.Kind())
	}
	return r
}

func (r *Registry) Get(kind types.Kind) (Controllable, bool) {
	s, ok := r.byKind[kind]
	return s, ok
}

func (r *Registry) Kinds() []types.Kind { return r.order }

// ActiveCount reports how many kinds are currently streaming.
func (r *Registry) ActiveCount() int {
	n := 0
	for _, k := range r.order {
		if r.byKind[k].Active() {
			n++
		}
	}
	return n
}

// RunDispatcher routes control messages to supervisor façades and fans
// profile switches out as ConfigChanged. It blocks until ctx is done.
//
// Control topic shape: sensor/<kind>/control/<method>.
func RunDispatcher(ctx context.Context, conn *bus.Connection, reg *Registry) {
	ctrlSub := conn.Subscribe(bus.T("sensor", "+", "control", "+"))
	profSub := conn.Subscribe(bus.T("profile", "current"))
	defer conn.Unsubscribe(ctrlSub)
	defer conn.Unsubscribe(profSub)

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-ctrlSub.Channel():
			if msg.Topic.Len() < 4 {
				continue
			}
			kind, _ := msg.Topic.At(1).(string)
			method, _ := msg.Topic.At(3).(string)
			sup, ok := reg.Get(types.Kind(kind))
			if !ok {
				replyErr(conn, msg, errcode.UnknownKind)
				continue
			}
			switch method {
			case "start", "reconfigure", "stop":
				// Façade events never fail; errors are absorbed behind
				// the status broadcast.
				sup.HandleEvent(method, msg.Payload)
				replyOK(conn, msg)
			default:
				replyErr(conn, msg, errcode.UnknownMethod)
			}

		case <-profSub.Channel():
			for _, k := range reg.Kinds() {
				if sup, _ := reg.Get(k); sup.Active() {
					sup.ConfigChanged()
				}
			}
		}
	}
}

func replyOK(conn *bus.Connection, req *bus.Message) {
	conn.Reply(req, types.OKReply{OK: true}, false)
}

func replyErr(conn *bus.Connection, req *bus.Message, code errcode.Code) {
	conn.Reply(req, types.ErrorReply{OK: false, Error: string(code)}, false)
}

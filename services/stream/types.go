// services/stream/types.go
package stream

import (
	"encoding/json"
	"time"

	"wearcode-go/spawn"
	"wearcode-go/types"
)

// Driver owns one concrete device for the lifetime of a worker. Drivers
// must not spawn goroutines; the worker is their only caller.
type Driver[C any] interface {
	// Init brings the device out of reset. Retried by the worker.
	Init() error
	// Configure applies cfg to the live device.
	Configure(cfg C) error
	// Sample acquires one frame payload. A nil payload with nil error
	// means "nothing to publish this cycle".
	Sample() (any, error)
	// Shutdown puts the device into standby. Best effort.
	Shutdown() error
}

// Notifier is optionally implemented by drivers whose hardware signals
// data readiness. When present the worker races it instead of the sample
// timer.
type Notifier interface {
	Ready() <-chan struct{}
}

// command is the worker's single-slot request: either a stop, or the
// latest configuration to apply.
type command[C any] struct {
	stop bool
	cfg  C
}

// StartPolicy selects what Start does while a worker is already running.
type StartPolicy uint8

const (
	// StartIgnore logs and drops the second Start.
	StartIgnore StartPolicy = iota
	// StartReconfigure routes the second Start's config through the
	// in-place reconfiguration path.
	StartReconfigure
)

// Store is the profile-scoped config lookup consulted on Start and on
// profile switches. Implemented by services/profile.
type Store interface {
	GetConfig(kind types.Kind, out any) bool
	SaveConfig(kind types.Kind, v any) error
}

// Options fixes one sensor kind's supervision parameters.
type Options[C any] struct {
	Kind types.Kind
	Tier spawn.Tier

	Policy StartPolicy
	// RestartOnReconfigure marks hardware that cannot be reconfigured in
	// place: the worker shuts the device down and reinitializes it with
	// the new config, keeping the task and its bus handle alive.
	RestartOnReconfigure bool

	Default C
	// Interval derives the sampling period from a config. Zero means the
	// worker is command-driven (or notifier-driven) only.
	Interval func(C) time.Duration

	InitRetries    int           // bounded device init attempts (default 3)
	InitRetryDelay time.Duration // fixed inter-attempt delay (default 100ms)

	// Open acquires a shared-bus handle and builds the kind's driver.
	// The returned release func drops the handle; it is called exactly
	// once, after worker cleanup.
	Open func() (Driver[C], func(), error)
}

func (o *Options[C]) setDefaults() {
	if o.InitRetries <= 0 {
		o.InitRetries = 3
	}
	if o.InitRetryDelay <= 0 {
		o.InitRetryDelay = 100 * time.Millisecond
	}
}

// decodeJSON converts bus payloads (raw bytes, strings, maps, structs)
// into a typed value.
func decodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	case T:
		*dst = v
		return nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}

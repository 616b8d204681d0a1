// platform/sim_mic.go

package platform

import (
	"math"
	"sync"

	"wearcode-go/drivers/pdmmic"
)

// SimMic synthesizes a 440 Hz tone as decimated PCM.
type SimMic struct {
	mu      sync.Mutex
	rate    uint32
	phase   float64
	running bool
}

var _ pdmmic.Source = (*SimMic)(nil)

func NewSimMic() *SimMic { return &SimMic{} }

func (m *SimMic) Start(sampleRateHz uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rate = sampleRateHz
	m.running = true
	return nil
}

func (m *SimMic) ReadPCM(dst []int16) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return 0, pdmmic.ErrStopped
	}
	step := 2 * math.Pi * 440 / float64(m.rate)
	for i := range dst {
		dst[i] = int16(math.Sin(m.phase) * 8000)
		m.phase += step
	}
	return len(dst), nil
}

func (m *SimMic) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

package recorder

import (
	"sync"
	"time"
)

// Clock источник времени записи и воспроизведения
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock настоящее время
var SystemClock Clock = systemClock{}

// ManualClock время, которое двигается только вручную
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func micros(t time.Time) int64 {
	return t.UnixMicro()
}

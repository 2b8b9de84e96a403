// Package platform supplies the board-level bindings the HAL needs: a
// microsecond clock, GPIO pins and power-meter buses. Host builds get
// in-memory fakes so the whole node can run and be tested off-target.
package platform

import "time"

// WallClock measures microseconds against a fixed epoch on the monotonic
// clock. Sub-millisecond sleeps spin, because the scheduler cannot be
// trusted to wake up again within a sensor bit slot.
type WallClock struct {
	epoch time.Time
}

func NewWallClock() *WallClock {
	return &WallClock{epoch: time.Now()}
}

func (c *WallClock) Micros() int64 {
	return time.Since(c.epoch).Microseconds()
}

func (c *WallClock) SleepMicros(n int64) {
	if n >= 1000 {
		time.Sleep(time.Duration(n) * time.Microsecond)
		return
	}
	until := c.Micros() + n
	for c.Micros() < until {
	}
}

package types

import (
	"sync"
	"time"
)

// Chain supplies the block height driving emission and the wall-clock time
// gating timelocks and cooldowns. The engine never reads time.Now directly so
// tests can drive both axes deterministically.
type Chain interface {
	Height() int64
	Now() time.Time
}

// SystemChain derives a height from wall-clock time at a fixed block interval.
type SystemChain struct {
	genesis  time.Time
	interval time.Duration
}

// NewSystemChain starts a wall-clock chain at height zero.
func NewSystemChain(interval time.Duration) *SystemChain {
	if interval <= 0 {
		interval = time.Second
	}
	return &SystemChain{genesis: time.Now(), interval: interval}
}

func (c *SystemChain) Height() int64 {
	return int64(time.Since(c.genesis) / c.interval)
}

func (c *SystemChain) Now() time.Time {
	return time.Now()
}

// ManualChain is a hand-advanced chain for tests and simulations.
type ManualChain struct {
	mu     sync.Mutex
	height int64
	now    time.Time
}

// NewManualChain starts a manual chain at the given height and time.
func NewManualChain(height int64, now time.Time) *ManualChain {
	return &ManualChain{height: height, now: now}
}

func (c *ManualChain) Height() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

func (c *ManualChain) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AdvanceBlocks moves the head forward by n blocks.
func (c *ManualChain) AdvanceBlocks(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += n
}

// AdvanceTime moves the clock forward by d.
func (c *ManualChain) AdvanceTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

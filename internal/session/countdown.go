package session

import (
	"sync"
	"time"
)

const tick = time.Second

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewTicker returns a Ticker backed by time.Ticker.
func NewTicker(d time.Duration) Ticker {
	return &timeTicker{t: time.NewTicker(d)}
}

type timeTicker struct {
	t *time.Ticker
}

func (t *timeTicker) C() <-chan time.Time { return t.t.C }

func (t *timeTicker) Stop() { t.t.Stop() }

type CountdownConfig struct {
	// NewTickerFunc defaults to NewTicker.
	NewTickerFunc func(d time.Duration) Ticker
	// Expire is called, outside any lock, with the token the countdown was started for.
	Expire func(token uint64)
}

// Countdown is a one-second ticker bound to a question token.
// Starting it again for another token cancels the previous run, so an expiry
// always carries the token of the question it was counting for.
type Countdown struct {
	newTicker func(d time.Duration) Ticker
	expire    func(token uint64)

	mu        sync.Mutex
	token     uint64
	remaining time.Duration
	paused    bool
	done      chan struct{}
}

func NewCountdown(c CountdownConfig) *Countdown {
	cd := &Countdown{
		newTicker: c.NewTickerFunc,
		expire:    c.Expire,
	}

	if cd.newTicker == nil {
		cd.newTicker = NewTicker
	}

	return cd
}

// Start counts down limit for token, replacing any running countdown.
func (c *Countdown) Start(token uint64, limit time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.token = token
	c.remaining = limit
	c.paused = false
	c.runLocked()
}

// Pause suspends ticking and keeps the remaining time.
func (c *Countdown) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done == nil {
		return
	}

	c.stopLocked()
	c.paused = true
}

func (c *Countdown) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.paused || c.remaining <= 0 {
		return
	}

	c.paused = false
	c.runLocked()
}

func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.paused = false
}

func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.remaining
}

func (c *Countdown) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.paused
}

func (c *Countdown) runLocked() {
	done := make(chan struct{})
	c.done = done

	go c.run(c.newTicker(tick), done, c.token)
}

func (c *Countdown) stopLocked() {
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
}

func (c *Countdown) run(t Ticker, done chan struct{}, token uint64) {
	defer t.Stop()

	for {
		select {
		case <-done:
			return
		case <-t.C():
		}

		c.mu.Lock()
		if c.done != done {
			c.mu.Unlock()
			return
		}

		c.remaining -= tick
		expired := c.remaining <= 0
		if expired {
			c.remaining = 0
			c.stopLocked()
		}
		c.mu.Unlock()

		if expired {
			if c.expire != nil {
				c.expire(token)
			}
			return
		}
	}
}

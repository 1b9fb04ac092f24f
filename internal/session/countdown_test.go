package session_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/trivia/internal/session"
)

func TestCountdown_Expire(t *testing.T) {
	cd, tickers, expired := makeCountdown()

	cd.Start(1, 3*time.Second)
	tk := <-tickers

	tk.tick()
	require.Eventually(t, func() bool { return cd.Remaining() == 2*time.Second }, time.Second, time.Millisecond)

	tk.tick()
	tk.tick()

	assert.Equal(t, uint64(1), waitExpired(t, expired))
	assert.Zero(t, cd.Remaining())
}

func TestCountdown_PauseResume(t *testing.T) {
	cd, tickers, expired := makeCountdown()

	cd.Start(7, 2*time.Second)
	tk := <-tickers
	tk.tick()
	require.Eventually(t, func() bool { return cd.Remaining() == time.Second }, time.Second, time.Millisecond)

	cd.Pause()
	assert.True(t, cd.Paused())
	assert.Equal(t, time.Second, cd.Remaining(), "pausing keeps the remaining time")

	cd.Resume()
	assert.False(t, cd.Paused())

	tk = <-tickers
	tk.tick()

	assert.Equal(t, uint64(7), waitExpired(t, expired))
}

func TestCountdown_RestartCancelsPrevious(t *testing.T) {
	cd, tickers, expired := makeCountdown()

	cd.Start(1, time.Second)
	stale := <-tickers

	cd.Start(2, time.Second)
	current := <-tickers

	select {
	case stale.c <- time.Now():
	case <-time.After(20 * time.Millisecond):
	}

	current.tick()

	assert.Equal(t, uint64(2), waitExpired(t, expired))
	select {
	case token := <-expired:
		t.Fatalf("unexpected expiry for token %d", token)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCountdown_Stop(t *testing.T) {
	cd, tickers, expired := makeCountdown()

	cd.Start(1, time.Second)
	tk := <-tickers
	cd.Stop()

	select {
	case tk.c <- time.Now():
	case <-time.After(20 * time.Millisecond):
	}

	select {
	case token := <-expired:
		t.Fatalf("stopped countdown expired with token %d", token)
	case <-time.After(20 * time.Millisecond):
	}

	cd.Resume()
	select {
	case <-tickers:
		t.Fatal("a stopped countdown cannot be resumed")
	default:
	}
}

func makeCountdown() (*session.Countdown, chan *manualTicker, chan uint64) {
	tickers := make(chan *manualTicker, 10)
	expired := make(chan uint64, 10)

	cd := session.NewCountdown(session.CountdownConfig{
		NewTickerFunc: func(time.Duration) session.Ticker {
			tk := newManualTicker()
			tickers <- tk
			return tk
		},
		Expire: func(token uint64) { expired <- token },
	})

	return cd, tickers, expired
}

func waitExpired(t *testing.T, expired chan uint64) uint64 {
	t.Helper()

	select {
	case token := <-expired:
		return token
	case <-time.After(time.Second):
		t.Fatal("countdown did not expire")
		return 0
	}
}

type manualTicker struct {
	c    chan time.Time
	once sync.Once
	done chan struct{}
}

func newManualTicker() *manualTicker {
	return &manualTicker{
		c:    make(chan time.Time),
		done: make(chan struct{}),
	}
}

func (t *manualTicker) C() <-chan time.Time { return t.c }

func (t *manualTicker) Stop() { t.once.Do(func() { close(t.done) }) }

// tick delivers one tick, or gives up when the ticker was stopped.
func (t *manualTicker) tick() {
	select {
	case t.c <- time.Now():
	case <-t.done:
	}
}

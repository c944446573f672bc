// Package clock is the time source used by the chat client.
//
// Production code uses Real(). Tests use Fake(), which only moves when
// Advance is called, so the auto-fetch ticker can be driven one tick at
// a time:
//
//	c := clock.Fake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
//	// start something that calls c.NewTicker(time.Second)
//	c.WaitForTickers(1)
//	c.Advance(time.Second)
package clock

import "time"

// Clock abstracts the parts of the time package the client needs.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a Ticker delivering ticks every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. C has capacity 1, so ticks are dropped
// rather than queued when the reader falls behind.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. Stop does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}

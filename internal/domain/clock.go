package domain

import "github.com/jonboulle/clockwork"

// clock is the package-level time source used to decide which acquisition
// date counts as "today". Tests inject a fake clock via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source for normalization. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

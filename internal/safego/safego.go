// Package safego provides a panic-recovering goroutine launcher for background work
// such as the rate-limit sweeper.
package safego

import "log/slog"

// Go launches fn in a new goroutine. A panic inside fn is recovered and logged
// with the supplied name instead of crashing the process.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine", "goroutine", name, "panic", r)
			}
		}()
		fn()
	}()
}

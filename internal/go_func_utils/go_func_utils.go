package go_func_utils

import (
	"runtime/debug"

	"github.com/rs/zerolog"
)

// SafeGo runs fn on a new goroutine. A panic is logged with its stack before the
// goroutine re-panics, because the curses UI owns stdout and would hide the trace.
func SafeGo(logger *zerolog.Logger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("goroutine panicked")
				panic(r)
			}
		}()
		fn()
	}()
}

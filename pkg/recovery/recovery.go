// Package recovery catches panics in worker goroutines so one bad file or
// pattern match doesn't take the whole scan down, and reports them to Sentry
// when configured.
package recovery

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"

	scontext "github.com/quietridge/secscan/pkg/context"
)

const sentryFlushTimeout = 5 * time.Second

// Recover logs and reports a panic, if one is in flight. Call it deferred at
// the top of any goroutine the orchestrator spawns (a worker, a header
// probe, a clone).
func Recover(ctx scontext.Context) {
	recoverInto(ctx, false)
}

// RecoverWithExit behaves like Recover but terminates the process afterward.
// Use it only at the top of main's own goroutine, where a panic means the
// process's invariants can no longer be trusted.
func RecoverWithExit(ctx scontext.Context) {
	recoverInto(ctx, true)
}

func recoverInto(ctx scontext.Context, exit bool) {
	r := recover()
	if r == nil {
		return
	}
	stack := string(debug.Stack())
	if eventID := sentry.CurrentHub().Recover(r); eventID != nil {
		ctx.Logger().Info("panic captured", "event_id", *eventID)
	}
	ctx.Logger().Error(fmt.Errorf("panic: %v", r), "recovered from panic",
		"stack-trace", stack,
		"exiting", exit,
	)
	if !sentry.Flush(sentryFlushTimeout) {
		ctx.Logger().Info("sentry flush timed out during panic recovery")
	}
	if exit {
		os.Exit(1)
	}
}

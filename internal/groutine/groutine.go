// Package groutine runs named background goroutines. The name is attached
// as a pprof label so it shows up in goroutine profiles.
package groutine

import (
	"context"
	"fmt"
	"runtime/pprof"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go runs fn in a named goroutine and returns a channel that receives its
// result once and is then closed. A panic in fn is returned as an error.
//
//	errs := groutine.Go(ctx, "status-server", srv.Serve)
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context) error) <-chan error {
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	done := make(chan error, 1)
	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("goroutine %s panicked: %v", name, r)
			}
		}()
		done <- fn(context.WithValue(ctx, goroutineNameKey, name))
	})
	return done
}

// Name retrieves the goroutine name from the context.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(goroutineNameKey).(string); ok {
		return s
	}
	return ""
}

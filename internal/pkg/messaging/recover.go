package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/shandysiswandi/otpgate/internal/pkg/stacktrace"
)

// dispatch runs the handler and turns a panic into an error so the broker
// treats it like any other failed delivery.
func dispatch(ctx context.Context, driver string, handler Handler, msg *Message) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			stack := debug.Stack()
			if paths := stacktrace.InternalPaths(stack); len(paths) > 0 {
				slog.ErrorContext(ctx, "panic in message handler", "driver", driver, "topic", msg.Topic, "panic", rvr, "stack", paths)
			} else {
				slog.ErrorContext(ctx, "panic in message handler", "driver", driver, "topic", msg.Topic, "panic", rvr, "stack", string(stack))
			}
			err = fmt.Errorf("messaging: panic in %s handler: %v", driver, rvr)
		}
	}()

	return handler(ctx, msg)
}

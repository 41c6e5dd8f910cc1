// Package notify sends meeting notifications to recipient addresses.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"meeting-reminders/internal/meeting"
)

// ErrDispatchFailed wraps every transport failure.
var ErrDispatchFailed = errors.New("dispatch failed")

// Dispatcher delivers one message to a set of recipients. An empty recipient
// list is not an error.
type Dispatcher interface {
	Dispatch(ctx context.Context, recipients []string, msg meeting.Message) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, recipients []string, msg meeting.Message) error

func (f DispatcherFunc) Dispatch(ctx context.Context, recipients []string, msg meeting.Message) error {
	return f(ctx, recipients, msg)
}

func failed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDispatchFailed, fmt.Sprintf(format, args...))
}

// LogDispatcher writes messages to the log instead of sending them.
type LogDispatcher struct {
	log *zap.Logger
}

func NewLogDispatcher(log *zap.Logger) *LogDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogDispatcher{log: log.With(zap.String("component", "notify"))}
}

func (d *LogDispatcher) Dispatch(_ context.Context, recipients []string, msg meeting.Message) error {
	d.log.Info("notification",
		zap.Strings("to", recipients),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}

type rateLimited struct {
	next    Dispatcher
	limiter *rate.Limiter
}

// RateLimited waits for a token from limiter before each dispatch.
func RateLimited(next Dispatcher, limiter *rate.Limiter) Dispatcher {
	return &rateLimited{next: next, limiter: limiter}
}

func (r *rateLimited) Dispatch(ctx context.Context, recipients []string, msg meeting.Message) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return failed("rate limit wait: %v", err)
	}
	return r.next.Dispatch(ctx, recipients, msg)
}

type withTimeout struct {
	next    Dispatcher
	timeout time.Duration
}

// WithTimeout bounds each dispatch. A non-positive timeout returns next unchanged.
func WithTimeout(next Dispatcher, timeout time.Duration) Dispatcher {
	if timeout <= 0 {
		return next
	}
	return &withTimeout{next: next, timeout: timeout}
}

func (w *withTimeout) Dispatch(ctx context.Context, recipients []string, msg meeting.Message) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return w.next.Dispatch(ctx, recipients, msg)
}

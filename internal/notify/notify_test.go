package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/mail.v2"

	"meeting-reminders/internal/meeting"
)

var testMsg = meeting.Message{Subject: "Reminder: Standup", Body: "Reminder: Standup is scheduled"}

type fakeSender struct {
	mu    sync.Mutex
	sent  []*mail.Message
	err   error
	block chan struct{}
}

func (f *fakeSender) DialAndSend(m ...*mail.Message) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func TestSMTPDispatcherSendsOneMessage(t *testing.T) {
	s := &fakeSender{}
	d := newSMTPDispatcher(s, "noreply@example.com", zap.NewNop())

	err := d.Dispatch(context.Background(), []string{"a@example.com", "b@example.com", "a@example.com"}, testMsg)
	require.NoError(t, err)
	require.Len(t, s.sent, 1)

	m := s.sent[0]
	assert.Equal(t, []string{"noreply@example.com"}, m.GetHeader("From"))
	assert.Equal(t, []string{"a@example.com", "b@example.com", "a@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{testMsg.Subject}, m.GetHeader("Subject"))
}

func TestSMTPDispatcherEmptyRecipients(t *testing.T) {
	s := &fakeSender{err: errors.New("should not be called")}
	d := newSMTPDispatcher(s, "noreply@example.com", nil)

	assert.NoError(t, d.Dispatch(context.Background(), nil, testMsg))
	assert.Empty(t, s.sent)
}

func TestSMTPDispatcherWrapsErrors(t *testing.T) {
	s := &fakeSender{err: errors.New("550 mailbox unavailable")}
	d := newSMTPDispatcher(s, "noreply@example.com", nil)

	err := d.Dispatch(context.Background(), []string{"a@example.com"}, testMsg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDispatchFailed)
	assert.Contains(t, err.Error(), "550")
}

func TestSMTPDispatcherHonorsContext(t *testing.T) {
	s := &fakeSender{block: make(chan struct{})}
	defer close(s.block)
	d := newSMTPDispatcher(s, "noreply@example.com", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := d.Dispatch(ctx, []string{"a@example.com"}, testMsg)
	assert.ErrorIs(t, err, ErrDispatchFailed)
}

func TestLogDispatcher(t *testing.T) {
	d := NewLogDispatcher(nil)
	assert.NoError(t, d.Dispatch(context.Background(), []string{"a@example.com"}, testMsg))
}

func TestRateLimited(t *testing.T) {
	var calls int
	next := DispatcherFunc(func(ctx context.Context, recipients []string, msg meeting.Message) error {
		calls++
		return nil
	})

	// One token, no refill: the second call must wait and hit the deadline.
	d := RateLimited(next, rate.NewLimiter(rate.Limit(0.001), 1))
	require.NoError(t, d.Dispatch(context.Background(), nil, testMsg))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Dispatch(ctx, nil, testMsg)
	assert.ErrorIs(t, err, ErrDispatchFailed)
	assert.Equal(t, 1, calls)
}

func TestWithTimeout(t *testing.T) {
	next := DispatcherFunc(func(ctx context.Context, recipients []string, msg meeting.Message) error {
		<-ctx.Done()
		return failed("%v", ctx.Err())
	})

	d := WithTimeout(next, 10*time.Millisecond)
	start := time.Now()
	err := d.Dispatch(context.Background(), nil, testMsg)
	assert.ErrorIs(t, err, ErrDispatchFailed)
	assert.Less(t, time.Since(start), time.Second)

	_, wrapped := WithTimeout(next, 0).(*withTimeout)
	assert.False(t, wrapped)
}

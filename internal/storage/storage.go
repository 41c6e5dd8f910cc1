package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"meeting-reminders/internal/meeting"
)

var (
	// ErrNotFound is returned for unknown meeting ids and out-of-range reminder indexes.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ReminderStore is the part of the store the reminder engine depends on.
type ReminderStore interface {
	// FetchCandidateMeetings returns meetings that start after now and still
	// have at least one unsent reminder, ordered by start time then id.
	FetchCandidateMeetings(ctx context.Context, now time.Time) ([]*meeting.Meeting, error)
	// MarkReminderSent sets the sent flag of one reminder. Marking an already
	// sent reminder succeeds.
	MarkReminderSent(ctx context.Context, meetingID string, index int) error
}

// Storage defines the interface for meeting persistence.
type Storage interface {
	ReminderStore

	CreateMeeting(ctx context.Context, m *meeting.Meeting) error
	GetMeeting(ctx context.Context, id string) (*meeting.Meeting, error)
	// ListMeetings returns meetings organized by or including identity, or
	// every meeting when identity is empty, ordered by start time.
	ListMeetings(ctx context.Context, identity string) ([]*meeting.Meeting, error)
	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// isCandidate mirrors the backends' candidate query for stores that filter in memory.
func isCandidate(m *meeting.Meeting, now time.Time) bool {
	return m.StartTime.After(now) && m.HasUnsent()
}

func sortByStart(list []*meeting.Meeting) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].StartTime.Equal(list[j].StartTime) {
			return list[i].StartTime.Before(list[j].StartTime)
		}
		return list[i].ID < list[j].ID
	})
}

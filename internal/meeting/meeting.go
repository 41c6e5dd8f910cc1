package meeting

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidMeeting is returned by Validate for meetings that cannot be stored.
var ErrInvalidMeeting = errors.New("invalid meeting")

// Meeting is a scheduled meeting together with the reminders it owns.
type Meeting struct {
	ID           string     `json:"id" bson:"_id"`
	Title        string     `json:"title" bson:"title"`
	Description  string     `json:"description" bson:"description"`
	Organizer    string     `json:"organizer" bson:"organizer"`
	StartTime    time.Time  `json:"startTime" bson:"start_time"`
	EndTime      time.Time  `json:"endTime" bson:"end_time"`
	Participants []string   `json:"participants" bson:"participants"`
	Reminders    []Reminder `json:"reminders" bson:"reminders"`
	CreatedAt    time.Time  `json:"createdAt" bson:"created_at"`
}

// NewMeeting builds a meeting with a fresh id. Every reminder starts unsent.
func NewMeeting(title, description, organizer string, start, end time.Time, participants []string, reminders []Reminder) *Meeting {
	rs := make([]Reminder, len(reminders))
	for i, r := range reminders {
		rs[i] = NewReminder(r.TimeBefore, r.Unit)
	}
	if participants == nil {
		participants = []string{}
	}
	return &Meeting{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  description,
		Organizer:    organizer,
		StartTime:    start,
		EndTime:      end,
		Participants: participants,
		Reminders:    rs,
		CreatedAt:    time.Now().UTC(),
	}
}

// Validate checks the creation-time invariants. Unknown reminder units are
// accepted on purpose; they fire immediately when scanned.
func (m *Meeting) Validate() error {
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidMeeting)
	}
	if strings.TrimSpace(m.Organizer) == "" {
		return fmt.Errorf("%w: organizer is required", ErrInvalidMeeting)
	}
	if !m.EndTime.After(m.StartTime) {
		return fmt.Errorf("%w: endTime must be after startTime", ErrInvalidMeeting)
	}
	for i, r := range m.Reminders {
		if r.TimeBefore < 0 {
			return fmt.Errorf("%w: reminder %d has negative timeBefore", ErrInvalidMeeting, i)
		}
	}
	return nil
}

// HasUnsent reports whether any reminder has not been sent yet.
func (m *Meeting) HasUnsent() bool {
	for _, r := range m.Reminders {
		if !r.Sent {
			return true
		}
	}
	return false
}

// Involves reports whether identity organizes or participates in the meeting.
func (m *Meeting) Involves(identity string) bool {
	if m.Organizer == identity {
		return true
	}
	for _, p := range m.Participants {
		if p == identity {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can't alias a store's internal state.
func (m *Meeting) Clone() *Meeting {
	c := *m
	c.Participants = append([]string(nil), m.Participants...)
	c.Reminders = append([]Reminder(nil), m.Reminders...)
	if c.Participants == nil {
		c.Participants = []string{}
	}
	return &c
}

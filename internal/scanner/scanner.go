// Package scanner decides which reminders of a meeting are due. It has no
// side effects and takes the current time as an argument.
package scanner

import (
	"time"

	"meeting-reminders/internal/meeting"
)

// Due is one reminder that should be dispatched now.
type Due struct {
	MeetingID  string
	Index      int
	Recipients []string
	Message    meeting.Message
	FireTime   time.Time
	// Malformed is set when the reminder's unit was not recognized and its
	// offset was treated as zero.
	Malformed bool
}

// IsDue reports whether r must be dispatched at now for a meeting starting at start.
// A reminder with no offset, including one with an unrecognized unit, is due at
// any scan before start.
func IsDue(r meeting.Reminder, start, now time.Time) bool {
	if r.Sent {
		return false
	}
	if !now.Before(start) {
		return false
	}
	if r.Offset() <= 0 {
		return true
	}
	return !now.Before(r.FireTime(start))
}

// Scan returns the due reminders of m in reminder order.
func Scan(m *meeting.Meeting, now time.Time) []Due {
	var due []Due
	for i, r := range m.Reminders {
		if !IsDue(r, m.StartTime, now) {
			continue
		}
		due = append(due, Due{
			MeetingID:  m.ID,
			Index:      i,
			Recipients: append([]string(nil), m.Participants...),
			Message:    meeting.ReminderMessage(m),
			FireTime:   r.FireTime(m.StartTime),
			Malformed:  !r.Unit.Valid(),
		})
	}
	return due
}

// ScanAll scans meetings in order and concatenates the results.
func ScanAll(meetings []*meeting.Meeting, now time.Time) []Due {
	var due []Due
	for _, m := range meetings {
		due = append(due, Scan(m, now)...)
	}
	return due
}

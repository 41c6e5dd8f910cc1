package meeting

import "time"

// Unit is the granularity of a reminder offset.
type Unit string

const (
	Minutes Unit = "minutes"
	Hours   Unit = "hours"
	Days    Unit = "days"
)

// Seconds returns the length of one unit in seconds. Unknown units are zero.
func (u Unit) Seconds() int64 {
	switch u {
	case Minutes:
		return 60
	case Hours:
		return 3600
	case Days:
		return 86400
	default:
		return 0
	}
}

// Valid reports whether u is one of the recognized units.
func (u Unit) Valid() bool {
	return u.Seconds() != 0
}

// Reminder is a notification offset owned by a Meeting. It has no identity
// of its own: it is addressed by (meeting id, index).
type Reminder struct {
	TimeBefore float64 `json:"timeBefore" bson:"time_before"`
	Unit       Unit    `json:"unit" bson:"unit"`
	Sent       bool    `json:"sent" bson:"sent"`
}

func NewReminder(timeBefore float64, unit Unit) Reminder {
	return Reminder{
		TimeBefore: timeBefore,
		Unit:       unit,
		Sent:       false,
	}
}

// Offset converts the reminder's offset to a duration. An unrecognized unit
// yields zero, so the reminder fires as soon as it is scanned.
func (r Reminder) Offset() time.Duration {
	return time.Duration(r.TimeBefore * float64(r.Unit.Seconds()) * float64(time.Second))
}

// FireTime is the instant the reminder becomes eligible for dispatch.
func (r Reminder) FireTime(start time.Time) time.Time {
	return start.Add(-r.Offset())
}

func (r *Reminder) MarkSent() {
	r.Sent = true
}

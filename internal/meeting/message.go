package meeting

import (
	"fmt"
	"time"
)

// Message is the subject and body of a notification about a meeting.
type Message struct {
	Subject string
	Body    string
}

func ReminderMessage(m *Meeting) Message {
	return Message{
		Subject: fmt.Sprintf("Reminder: %s", m.Title),
		Body:    fmt.Sprintf("Reminder: %s is scheduled for %s", m.Title, m.StartTime.Format(time.RFC1123)),
	}
}

func InvitationMessage(m *Meeting) Message {
	return Message{
		Subject: fmt.Sprintf("Invitation: %s", m.Title),
		Body: fmt.Sprintf("You've been invited to a meeting: %s\n\nDescription: %s\n\nTime: %s to %s",
			m.Title, m.Description, m.StartTime.Format(time.RFC1123), m.EndTime.Format(time.RFC1123)),
	}
}

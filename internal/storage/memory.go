package storage

import (
	"context"
	"sync"
	"time"

	"meeting-reminders/internal/meeting"
)

type MemoryStorage struct {
	meetings map[string]*meeting.Meeting
	mu       sync.Mutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		meetings: make(map[string]*meeting.Meeting),
	}
}

func (m *MemoryStorage) CreateMeeting(_ context.Context, mt *meeting.Meeting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meetings[mt.ID] = mt.Clone()
	return nil
}

func (m *MemoryStorage) GetMeeting(_ context.Context, id string) (*meeting.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.meetings[id]
	if !ok {
		return nil, notFound("meeting %s", id)
	}
	return mt.Clone(), nil
}

func (m *MemoryStorage) ListMeetings(_ context.Context, identity string) ([]*meeting.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*meeting.Meeting
	for _, mt := range m.meetings {
		if identity == "" || mt.Involves(identity) {
			list = append(list, mt.Clone())
		}
	}
	sortByStart(list)
	return list, nil
}

func (m *MemoryStorage) FetchCandidateMeetings(_ context.Context, now time.Time) ([]*meeting.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*meeting.Meeting
	for _, mt := range m.meetings {
		if isCandidate(mt, now) {
			list = append(list, mt.Clone())
		}
	}
	sortByStart(list)
	return list, nil
}

func (m *MemoryStorage) MarkReminderSent(_ context.Context, meetingID string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.meetings[meetingID]
	if !ok {
		return notFound("meeting %s", meetingID)
	}
	if index < 0 || index >= len(mt.Reminders) {
		return notFound("meeting %s reminder %d", meetingID, index)
	}
	mt.Reminders[index].MarkSent()
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

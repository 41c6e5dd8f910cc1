package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"meeting-reminders/internal/meeting"
)

// FileStorage keeps every meeting in one JSON document keyed by id. Each
// operation reads the file and writes it back, so the sent flags survive
// restarts.
type FileStorage struct {
	meetingFile string
	mu          sync.Mutex
}

func NewFileStorage(meetingFile string) *FileStorage {
	return &FileStorage{
		meetingFile: meetingFile,
	}
}

// Helper functions for file IO
func (fs *FileStorage) loadMeetings() (map[string]*meeting.Meeting, error) {
	meetings := make(map[string]*meeting.Meeting)
	data, err := os.ReadFile(fs.meetingFile)
	if os.IsNotExist(err) {
		return meetings, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return meetings, nil
	}
	if err := json.Unmarshal(data, &meetings); err != nil {
		return nil, err
	}
	return meetings, nil
}

// saveMeetings writes to a temporary file and renames it over the original
// so a crash mid-write never leaves a truncated document.
func (fs *FileStorage) saveMeetings(meetings map[string]*meeting.Meeting) error {
	data, err := json.MarshalIndent(meetings, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(fs.meetingFile), filepath.Base(fs.meetingFile)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), fs.meetingFile)
}

func (fs *FileStorage) CreateMeeting(_ context.Context, m *meeting.Meeting) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	meetings, err := fs.loadMeetings()
	if err != nil {
		return unavailable("create meeting", err)
	}
	meetings[m.ID] = m.Clone()
	if err := fs.saveMeetings(meetings); err != nil {
		return unavailable("create meeting", err)
	}
	return nil
}

func (fs *FileStorage) GetMeeting(_ context.Context, id string) (*meeting.Meeting, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	meetings, err := fs.loadMeetings()
	if err != nil {
		return nil, unavailable("get meeting", err)
	}
	m, ok := meetings[id]
	if !ok {
		return nil, notFound("meeting %s", id)
	}
	return m, nil
}

func (fs *FileStorage) ListMeetings(_ context.Context, identity string) ([]*meeting.Meeting, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	meetings, err := fs.loadMeetings()
	if err != nil {
		return nil, unavailable("list meetings", err)
	}
	var list []*meeting.Meeting
	for _, m := range meetings {
		if identity == "" || m.Involves(identity) {
			list = append(list, m)
		}
	}
	sortByStart(list)
	return list, nil
}

func (fs *FileStorage) FetchCandidateMeetings(_ context.Context, now time.Time) ([]*meeting.Meeting, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	meetings, err := fs.loadMeetings()
	if err != nil {
		return nil, unavailable("fetch candidates", err)
	}
	var list []*meeting.Meeting
	for _, m := range meetings {
		if isCandidate(m, now) {
			list = append(list, m)
		}
	}
	sortByStart(list)
	return list, nil
}

func (fs *FileStorage) MarkReminderSent(_ context.Context, meetingID string, index int) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	meetings, err := fs.loadMeetings()
	if err != nil {
		return unavailable("mark reminder sent", err)
	}
	m, ok := meetings[meetingID]
	if !ok {
		return notFound("meeting %s", meetingID)
	}
	if index < 0 || index >= len(m.Reminders) {
		return notFound("meeting %s reminder %d", meetingID, index)
	}
	if m.Reminders[index].Sent {
		return nil
	}
	m.Reminders[index].MarkSent()
	if err := fs.saveMeetings(meetings); err != nil {
		return unavailable("mark reminder sent", err)
	}
	return nil
}

func (fs *FileStorage) Close() error {
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"meeting-reminders/internal/meeting"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStorage struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{db: db}

	// Create tables if they don't exist
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// createTables creates the necessary tables. Times are stored as unix
// nanoseconds so range comparisons stay numeric.
func (s *SQLiteStorage) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS meetings (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			organizer TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			participants TEXT NOT NULL, -- JSON array of addresses
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reminders (
			meeting_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			time_before REAL NOT NULL,
			unit TEXT NOT NULL,
			sent BOOLEAN NOT NULL DEFAULT 0,
			PRIMARY KEY (meeting_id, idx),
			FOREIGN KEY (meeting_id) REFERENCES meetings(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_meetings_start_time ON meetings(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_unsent ON reminders(sent, meeting_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %q: %w", query, err)
		}
	}

	return nil
}

func (s *SQLiteStorage) CreateMeeting(ctx context.Context, m *meeting.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	participantsJSON, err := json.Marshal(m.Participants)
	if err != nil {
		return fmt.Errorf("failed to marshal participants: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("create meeting", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO meetings
		(id, title, description, organizer, start_time, end_time, participants, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Title, m.Description, m.Organizer,
		m.StartTime.UnixNano(), m.EndTime.UnixNano(), string(participantsJSON), m.CreatedAt.UnixNano())
	if err != nil {
		return unavailable("create meeting", err)
	}

	for i, r := range m.Reminders {
		_, err = tx.ExecContext(ctx, `INSERT INTO reminders (meeting_id, idx, time_before, unit, sent)
			VALUES (?, ?, ?, ?, ?)`, m.ID, i, r.TimeBefore, string(r.Unit), r.Sent)
		if err != nil {
			return unavailable("create reminder", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("create meeting", err)
	}
	return nil
}

func (s *SQLiteStorage) GetMeeting(ctx context.Context, id string) (*meeting.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.queryMeetings(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = ?`, id)
	if err != nil {
		return nil, unavailable("get meeting", err)
	}
	if len(list) == 0 {
		return nil, notFound("meeting %s", id)
	}
	return list[0], nil
}

func (s *SQLiteStorage) ListMeetings(ctx context.Context, identity string) ([]*meeting.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		list []*meeting.Meeting
		err  error
	)
	if identity == "" {
		list, err = s.queryMeetings(ctx, `SELECT `+meetingColumns+` FROM meetings ORDER BY start_time, id`)
	} else {
		list, err = s.queryMeetings(ctx, `SELECT `+meetingColumns+` FROM meetings
			WHERE organizer = ? OR EXISTS (SELECT 1 FROM json_each(meetings.participants) WHERE value = ?)
			ORDER BY start_time, id`, identity, identity)
	}
	if err != nil {
		return nil, unavailable("list meetings", err)
	}
	return list, nil
}

func (s *SQLiteStorage) FetchCandidateMeetings(ctx context.Context, now time.Time) ([]*meeting.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.queryMeetings(ctx, `SELECT `+meetingColumns+` FROM meetings
		WHERE start_time > ?
		AND EXISTS (SELECT 1 FROM reminders WHERE reminders.meeting_id = meetings.id AND reminders.sent = 0)
		ORDER BY start_time, id`, now.UnixNano())
	if err != nil {
		return nil, unavailable("fetch candidates", err)
	}
	return list, nil
}

func (s *SQLiteStorage) MarkReminderSent(ctx context.Context, meetingID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE reminders SET sent = 1 WHERE meeting_id = ? AND idx = ?", meetingID, index)
	if err != nil {
		return unavailable("mark reminder sent", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("mark reminder sent", err)
	}
	if n == 0 {
		return notFound("meeting %s reminder %d", meetingID, index)
	}
	return nil
}

const meetingColumns = `id, title, description, organizer, start_time, end_time, participants, created_at`

// queryMeetings scans meeting rows and attaches their reminders in index order.
// Callers must hold s.mu.
func (s *SQLiteStorage) queryMeetings(ctx context.Context, query string, args ...any) ([]*meeting.Meeting, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*meeting.Meeting
	for rows.Next() {
		var (
			m                   meeting.Meeting
			description         sql.NullString
			start, end, created int64
			participantsJSON    string
		)
		if err := rows.Scan(&m.ID, &m.Title, &description, &m.Organizer, &start, &end, &participantsJSON, &created); err != nil {
			return nil, fmt.Errorf("failed to scan meeting: %w", err)
		}
		m.Description = description.String
		m.StartTime = time.Unix(0, start).UTC()
		m.EndTime = time.Unix(0, end).UTC()
		m.CreatedAt = time.Unix(0, created).UTC()
		if err := json.Unmarshal([]byte(participantsJSON), &m.Participants); err != nil {
			return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
		}
		if m.Participants == nil {
			m.Participants = []string{}
		}
		list = append(list, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// The pool holds a single connection.
	rows.Close()

	for _, m := range list {
		if err := s.attachReminders(ctx, m); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (s *SQLiteStorage) attachReminders(ctx context.Context, m *meeting.Meeting) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT idx, time_before, unit, sent FROM reminders WHERE meeting_id = ? ORDER BY idx", m.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			idx  int
			r    meeting.Reminder
			unit string
		)
		if err := rows.Scan(&idx, &r.TimeBefore, &unit, &r.Sent); err != nil {
			return fmt.Errorf("failed to scan reminder: %w", err)
		}
		if idx != len(m.Reminders) {
			return errors.New("reminder indexes are not contiguous")
		}
		r.Unit = meeting.Unit(unit)
		m.Reminders = append(m.Reminders, r)
	}
	return rows.Err()
}

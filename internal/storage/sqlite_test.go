package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"meeting-reminders/internal/meeting"
)

func TestSQLiteStorage(t *testing.T) {
	// Initialize SQLite storage in a temporary directory
	storage, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test_meetings.db"))
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}
	defer storage.Close()

	// Use the shared test helper
	runStorageTests(t, storage)
}

func TestSQLiteStorageSentPersistence(t *testing.T) {
	ctx := context.Background()
	dbFile := filepath.Join(t.TempDir(), "test_persistence.db")

	storage, err := NewSQLiteStorage(dbFile)
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}

	m := testMeeting("m1", base.Add(time.Hour), meeting.NewReminder(5, meeting.Minutes), meeting.NewReminder(1, meeting.Hours))
	if err := storage.CreateMeeting(ctx, m); err != nil {
		t.Fatalf("CreateMeeting failed: %v", err)
	}
	if err := storage.MarkReminderSent(ctx, "m1", 1); err != nil {
		t.Fatalf("MarkReminderSent failed: %v", err)
	}
	storage.Close()

	// Reopen and check the sent flag was kept
	storage2, err := NewSQLiteStorage(dbFile)
	if err != nil {
		t.Fatalf("Failed to reopen SQLite storage: %v", err)
	}
	defer storage2.Close()

	got, err := storage2.GetMeeting(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMeeting after reopen failed: %v", err)
	}
	if got.Reminders[0].Sent || !got.Reminders[1].Sent {
		t.Errorf("unexpected reminder state after reopen: %+v", got.Reminders)
	}
	if !got.CreatedAt.Equal(m.CreatedAt) {
		t.Errorf("CreatedAt: got %v, want %v", got.CreatedAt, m.CreatedAt)
	}
}

func TestSQLiteStorageDuplicateMeeting(t *testing.T) {
	ctx := context.Background()
	storage, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test_dup.db"))
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}
	defer storage.Close()

	m := testMeeting("m1", base.Add(time.Hour), meeting.NewReminder(5, meeting.Minutes))
	if err := storage.CreateMeeting(ctx, m); err != nil {
		t.Fatalf("CreateMeeting failed: %v", err)
	}
	if err := storage.CreateMeeting(ctx, m); err == nil {
		t.Error("expected an error creating a meeting with a duplicate id")
	}

	// The failed insert must not leave extra reminder rows behind.
	got, err := storage.GetMeeting(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMeeting failed: %v", err)
	}
	if len(got.Reminders) != 1 {
		t.Errorf("expected 1 reminder, got %d", len(got.Reminders))
	}
}

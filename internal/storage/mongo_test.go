package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"meeting-reminders/internal/meeting"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

// skipIfNoDocker skips the test if Docker is not available
func skipIfNoDocker(t *testing.T) {
	if os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true" {
		t.Skip("Skipping Docker-based tests in CI environment")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

// setupMongoTestContainer sets up a MongoDB test container and returns the storage instance and cleanup function
func setupMongoTestContainer(t *testing.T) (*MongoStorage, func()) {
	skipIfNoDocker(t)

	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:6")
	if err != nil {
		t.Skipf("Failed to start MongoDB container (Docker may not be available): %v", err)
	}

	connectionString, err := mongoContainer.ConnectionString(ctx)
	if err != nil {
		mongoContainer.Terminate(ctx)
		t.Skipf("Failed to get MongoDB connection string: %v", err)
	}

	mongoStorage, err := NewMongoStorage(connectionString, "test_meetings")
	if err != nil {
		mongoContainer.Terminate(ctx)
		t.Skipf("Failed to create MongoDB storage: %v", err)
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		mongoStorage.Close()
		mongoContainer.Terminate(ctx)
	}

	return mongoStorage, cleanup
}

func TestMongoStorage(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping MongoDB integration test in short mode")
	}

	mongoStorage, cleanup := setupMongoTestContainer(t)
	defer cleanup()

	// Run the common storage tests
	runStorageTests(t, mongoStorage)
}

func TestMongoStorageEmbeddedReminderUpdate(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping MongoDB integration test in short mode")
	}

	mongoStorage, cleanup := setupMongoTestContainer(t)
	defer cleanup()

	ctx := context.Background()
	m := testMeeting("m1", base.Add(time.Hour),
		meeting.NewReminder(5, meeting.Minutes),
		meeting.NewReminder(10, meeting.Minutes),
		meeting.NewReminder(15, meeting.Minutes))
	if err := mongoStorage.CreateMeeting(ctx, m); err != nil {
		t.Fatalf("CreateMeeting failed: %v", err)
	}

	t.Run("only the addressed reminder changes", func(t *testing.T) {
		if err := mongoStorage.MarkReminderSent(ctx, "m1", 1); err != nil {
			t.Fatalf("MarkReminderSent failed: %v", err)
		}
		got, err := mongoStorage.GetMeeting(ctx, "m1")
		if err != nil {
			t.Fatalf("GetMeeting failed: %v", err)
		}
		want := []bool{false, true, false}
		for i, r := range got.Reminders {
			if r.Sent != want[i] {
				t.Errorf("reminder %d sent = %v, want %v", i, r.Sent, want[i])
			}
		}
	})

	t.Run("index past the end does not create a reminder", func(t *testing.T) {
		if err := mongoStorage.MarkReminderSent(ctx, "m1", 3); err == nil {
			t.Fatal("expected an error for index 3")
		}
		got, err := mongoStorage.GetMeeting(ctx, "m1")
		if err != nil {
			t.Fatalf("GetMeeting failed: %v", err)
		}
		if len(got.Reminders) != 3 {
			t.Errorf("expected 3 reminders, got %d", len(got.Reminders))
		}
	})
}

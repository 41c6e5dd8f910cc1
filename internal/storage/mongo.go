package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"meeting-reminders/internal/meeting"
)

// MongoStorage implements the Storage interface using MongoDB. Reminders are
// embedded in their meeting document.
type MongoStorage struct {
	client            *mongo.Client
	database          *mongo.Database
	meetingCollection *mongo.Collection
}

// NewMongoStorage creates a new MongoDB storage instance
func NewMongoStorage(connectionString, databaseName string) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Test the connection
	err = client.Ping(ctx, nil)
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(databaseName)

	ms := &MongoStorage{
		client:            client,
		database:          database,
		meetingCollection: database.Collection("meetings"),
	}

	if err := ms.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return ms, nil
}

// Close closes the MongoDB connection
func (ms *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

// ensureIndexes backs the candidate query and the per-identity listing.
func (ms *MongoStorage) ensureIndexes(ctx context.Context) error {
	_, err := ms.meetingCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "reminders.sent", Value: 1}, {Key: "start_time", Value: 1}}},
		{Keys: bson.D{{Key: "organizer", Value: 1}}},
		{Keys: bson.D{{Key: "participants", Value: 1}}},
	})
	return err
}

var byStart = options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}, {Key: "_id", Value: 1}})

func (ms *MongoStorage) CreateMeeting(ctx context.Context, m *meeting.Meeting) error {
	_, err := ms.meetingCollection.InsertOne(ctx, m)
	if err != nil {
		return unavailable("create meeting", err)
	}
	return nil
}

func (ms *MongoStorage) GetMeeting(ctx context.Context, id string) (*meeting.Meeting, error) {
	var m meeting.Meeting
	err := ms.meetingCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("meeting %s", id)
		}
		return nil, unavailable("get meeting", err)
	}
	return &m, nil
}

func (ms *MongoStorage) ListMeetings(ctx context.Context, identity string) ([]*meeting.Meeting, error) {
	filter := bson.M{}
	if identity != "" {
		filter = bson.M{"$or": bson.A{
			bson.M{"organizer": identity},
			bson.M{"participants": identity},
		}}
	}
	list, err := ms.find(ctx, filter)
	if err != nil {
		return nil, unavailable("list meetings", err)
	}
	return list, nil
}

func (ms *MongoStorage) FetchCandidateMeetings(ctx context.Context, now time.Time) ([]*meeting.Meeting, error) {
	filter := bson.M{
		"reminders.sent": false,
		"start_time":     bson.M{"$gt": now},
	}
	list, err := ms.find(ctx, filter)
	if err != nil {
		return nil, unavailable("fetch candidates", err)
	}
	return list, nil
}

// MarkReminderSent updates the embedded reminder in place. Setting the flag
// again matches the document without modifying it, which is still a success.
func (ms *MongoStorage) MarkReminderSent(ctx context.Context, meetingID string, index int) error {
	if index < 0 {
		return notFound("meeting %s reminder %d", meetingID, index)
	}
	field := fmt.Sprintf("reminders.%d", index)
	filter := bson.M{
		"_id": meetingID,
		field: bson.M{"$exists": true},
	}
	update := bson.M{"$set": bson.M{field + ".sent": true}}

	result, err := ms.meetingCollection.UpdateOne(ctx, filter, update)
	if err != nil {
		return unavailable("mark reminder sent", err)
	}
	if result.MatchedCount == 0 {
		return notFound("meeting %s reminder %d", meetingID, index)
	}
	return nil
}

func (ms *MongoStorage) find(ctx context.Context, filter bson.M) ([]*meeting.Meeting, error) {
	cursor, err := ms.meetingCollection.Find(ctx, filter, byStart)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var meetings []*meeting.Meeting
	for cursor.Next(ctx) {
		var m meeting.Meeting
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("failed to decode meeting: %w", err)
		}
		meetings = append(meetings, &m)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return meetings, nil
}

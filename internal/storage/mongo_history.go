package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/carpool-matching/internal/models"
)

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo.Ping: %w", err)
	}
	return client, nil
}

// MongoHistoryStore stores trip history records as documents.
type MongoHistoryStore struct {
	Collection *mongo.Collection
}

func NewMongoHistoryStore(client *mongo.Client, database string) *MongoHistoryStore {
	return &MongoHistoryStore{Collection: client.Database(database).Collection("trip_history")}
}

// EnsureIndexes creates the (user_id, departure_time) index used by History.
func (s *MongoHistoryStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "departure_time", Value: -1}},
	})
	return err
}

func (s *MongoHistoryStore) AppendHistory(ctx context.Context, rec models.TripHistoryRecord) error {
	if s.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := s.Collection.InsertOne(ctx, rec)
	return err
}

func (s *MongoHistoryStore) History(ctx context.Context, userID string, limit int) ([]models.TripHistoryRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "departure_time", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.Collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []models.TripHistoryRecord{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

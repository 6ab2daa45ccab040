package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const MongoCollection = "sync_logs"

// MongoSink appends entries to the sync_logs collection.
type MongoSink struct {
	collection *mongo.Collection
}

func NewMongoSink(db *mongo.Database) *MongoSink {
	return &MongoSink{collection: db.Collection(MongoCollection)}
}

func (s *MongoSink) Append(ctx context.Context, e Entry) error {
	doc := bson.M{
		"entityType":    e.EntityType,
		"entityId":      e.EntityID,
		"action":        e.Action,
		"direction":     string(e.Direction),
		"status":        string(e.Status),
		"correlationId": e.CorrelationID,
		"createdAt":     e.CreatedAt,
	}
	if e.Error != "" {
		doc["error"] = e.Error
	}
	if e.Request != nil {
		doc["requestPayload"] = toBSON(e.Request)
	}
	if e.Response != nil {
		doc["responsePayload"] = toBSON(e.Response)
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert sync log: %w", err)
	}
	return nil
}

// toBSON converts a JSON-serialisable payload into a BSON value so it stays queryable.
// Payloads that do not survive the round trip are stored as their JSON text.
func toBSON(v any) any {
	raw, ok := v.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		raw = b
	}
	var wrapper bson.D
	if err := bson.UnmarshalExtJSON(append(append([]byte(`{"v":`), raw...), '}'), false, &wrapper); err != nil || len(wrapper) == 0 {
		return string(raw)
	}
	return wrapper[0].Value
}

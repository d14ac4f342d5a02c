package services

import (
	"context"
	"log"
	"time"

	"cryptovision_backend/models"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB database and collection names
const (
	ArchiveDBName         = "cryptovision"
	AlertEventsCollection = "alert_events"
	archiveConnectTimeout = 10 * time.Second
	archiveWriteTimeout   = 5 * time.Second
)

// AlertEvent is the document written for every triggered alert
type AlertEvent struct {
	AlertID     string    `bson:"alert_id"`
	UserID      string    `bson:"user_id"`
	Symbol      string    `bson:"symbol"`
	Condition   string    `bson:"condition"`
	TargetPrice string    `bson:"target_price"`
	Price       string    `bson:"price"`
	TriggeredAt time.Time `bson:"triggered_at"`
}

// ArchiveService keeps a history of triggered-alert events in MongoDB.
// It is optional: when no URI is configured the service is nil and callers
// skip it. Failures are logged, never fatal.
type ArchiveService struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewArchiveService connects to MongoDB. Returns nil when uri is empty.
func NewArchiveService(uri string) (*ArchiveService, error) {
	if uri == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	log.Println("Alert event archive connected")
	return &ArchiveService{
		client:     client,
		collection: client.Database(ArchiveDBName).Collection(AlertEventsCollection),
	}, nil
}

// RecordTriggered archives one event document per triggered alert
func (s *ArchiveService) RecordTriggered(alerts []models.Alert, price decimal.Decimal, at time.Time) {
	if s == nil || len(alerts) == 0 {
		return
	}

	docs := make([]interface{}, 0, len(alerts))
	for _, alert := range alerts {
		docs = append(docs, AlertEvent{
			AlertID:     alert.ID,
			UserID:      alert.UserID,
			Symbol:      alert.Symbol,
			Condition:   alert.Condition.String(),
			TargetPrice: alert.TargetPrice.String(),
			Price:       price.String(),
			TriggeredAt: at,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveWriteTimeout)
	defer cancel()

	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		log.Printf("Failed to archive %d alert events: %v", len(docs), err)
	}
}

// Close disconnects from MongoDB
func (s *ArchiveService) Close() error {
	if s == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveConnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

package realtime

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	databaseName    = "signal_engine"
	quoteCollection = "latest_quotes"
)

// Quote is the most recent observed price for one symbol.
type Quote struct {
	Symbol        string    `bson:"_id" json:"symbol"`
	Close         float64   `bson:"close" json:"close"`
	Volume        int64     `bson:"volume" json:"volume"`
	Date          time.Time `bson:"date" json:"date"`
	ChangePercent float64   `bson:"change_percent" json:"change_percent"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

// Store keeps one latest-quote document per symbol in MongoDB. It is an
// optional collaborator: a nil *Store disables snapshotting without
// branching at every call site.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

// Connect establishes the MongoDB connection and pings it. An empty URI
// returns (nil, nil): snapshotting is simply disabled.
func Connect(ctx context.Context, uri string, logger *zap.Logger) (*Store, error) {
	if uri == "" {
		logger.Info("MONGODB_URI not set, realtime snapshot store disabled")
		return nil, nil
	}

	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetMaxConnIdleTime(30 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	logger.Info("realtime snapshot store connected")
	return &Store{
		client: client,
		coll:   client.Database(databaseName).Collection(quoteCollection),
		logger: logger,
	}, nil
}

// Close disconnects from MongoDB.
func (s *Store) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// UpsertQuotes replaces the latest-quote document for every symbol given.
// Returns the number of documents written.
func (s *Store) UpsertQuotes(ctx context.Context, quotes []Quote) (int, error) {
	if s == nil || len(quotes) == 0 {
		return 0, nil
	}

	written := 0
	for _, q := range quotes {
		q.UpdatedAt = time.Now()
		_, err := s.coll.ReplaceOne(ctx,
			bson.M{"_id": q.Symbol},
			q,
			options.Replace().SetUpsert(true))
		if err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// LatestQuotes returns every stored quote, newest update first.
func (s *Store) LatestQuotes(ctx context.Context) ([]Quote, error) {
	if s == nil {
		return []Quote{}, nil
	}

	cursor, err := s.coll.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	quotes := []Quote{}
	if err := cursor.All(ctx, &quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

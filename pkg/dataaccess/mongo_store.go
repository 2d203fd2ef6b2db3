package dataaccess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Jacobbrewer1/hound/pkg/dataaccess/monitoring"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoStoreName = "mongo_store"

	// mongoDatabase is the database documents are kept in.
	mongoDatabase = "hound"

	// mongoCollection is the collection documents are kept in.
	mongoCollection = "documents"
)

// mongoDocument is the envelope a document is stored in.
type mongoDocument struct {
	Name string   `bson:"_id"`
	Data bson.Raw `bson:"data"`
}

type mongoStore struct {
	// l is the logger.
	l *slog.Logger

	// client is the database.
	client *mongo.Client
}

// NewMongoStore creates a document store that keeps documents in MongoDB.
func NewMongoStore(l *slog.Logger, client *mongo.Client) DocumentStore {
	l = l.With(slog.String(logging.KeyDal, mongoStoreName))

	if client == nil {
		l.Warn("MongoDB is nil, this can cause a panic. Proceeding...")
	}

	return &mongoStore{
		l:      l,
		client: client,
	}
}

func (s *mongoStore) collection() *mongo.Collection {
	return s.client.Database(mongoDatabase).Collection(mongoCollection)
}

func (s *mongoStore) Load(ctx context.Context, name string, v any) (err error) {
	done := monitoring.Observe(mongoStoreName, "load", name)
	defer func() { done(err) }()

	doc := new(mongoDocument)
	err = s.collection().FindOne(ctx, bson.M{"_id": name}).Decode(doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("error getting document %s: %w", name, err)
	}

	if err := bson.Unmarshal(doc.Data, v); err != nil {
		return fmt.Errorf("error decoding document %s: %w", name, err)
	}
	return nil
}

func (s *mongoStore) Save(ctx context.Context, name string, v any) (err error) {
	done := monitoring.Observe(mongoStoreName, "save", name)
	defer func() { done(err) }()

	data, err := bson.Marshal(v)
	if err != nil {
		return fmt.Errorf("error encoding document %s: %w", name, err)
	}

	// Save the document.
	opts := options.Update().SetUpsert(true)
	_, err = s.collection().UpdateOne(ctx, bson.M{"_id": name}, bson.M{"$set": bson.M{"data": bson.Raw(data)}}, opts)
	if err != nil {
		return fmt.Errorf("error updating document %s: %w", name, err)
	}
	return nil
}

func (s *mongoStore) Ping(ctx context.Context) (err error) {
	done := monitoring.Observe(mongoStoreName, "ping", "-")
	defer func() { done(err) }()

	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return nil
}

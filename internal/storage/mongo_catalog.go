package storage

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for the MongoDB catalog.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. replay
	Collection string // e.g. captures
}

// MongoCatalog implements CatalogRepo on MongoDB backend.
type MongoCatalog struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

// NewMongoCatalog establishes connection and returns repository.
func NewMongoCatalog(cfg MongoConfig) (*MongoCatalog, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "replay"
	}
	if cfg.Collection == "" {
		cfg.Collection = "captures"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	// ping
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	repo := &MongoCatalog{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}

	if err := repo.ensureIndexes(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (m *MongoCatalog) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	nameIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}, {Key: "finished_at", Value: -1}},
		Options: options.Index().SetName("name_finished"),
	}
	_, err := m.collection.Indexes().CreateOne(ctx, nameIdx)
	return err
}

func (m *MongoCatalog) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.ctxTimeout)
}

func (m *MongoCatalog) Save(ctx context.Context, rec *CaptureRecord) error {
	if err := prepare(rec); err != nil {
		return err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, options.Replace().SetUpsert(true))
	return err
}

func (m *MongoCatalog) findOne(ctx context.Context, filter bson.M) (*CaptureRecord, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	var rec CaptureRecord
	opts := options.FindOne().SetSort(bson.D{{Key: "finished_at", Value: -1}})
	err := m.collection.FindOne(ctx, filter, opts).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *MongoCatalog) Get(ctx context.Context, id string) (*CaptureRecord, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *MongoCatalog) FindByName(ctx context.Context, name string) (*CaptureRecord, error) {
	return m.findOne(ctx, bson.M{"name": name})
}

func (m *MongoCatalog) List(ctx context.Context) ([]*CaptureRecord, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	cur, err := m.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "finished_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var out []*CaptureRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MongoCatalog) Delete(ctx context.Context, id string) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	res, err := m.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoCatalog) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

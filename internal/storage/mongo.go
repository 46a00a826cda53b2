package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"quote-ingestor/internal/model"
)

// MongoSink 文档库实现：推送事件一条一个文档；也可作为轮询数据的备选存储
// mongo.Client 自带连接池，可并发使用
type MongoSink struct {
	client   *mongo.Client
	database *mongo.Database
	now      func() time.Time
	logger   *zap.Logger
}

// NewMongoSink 连接并 ping，失败时断开连接
func NewMongoSink(ctx context.Context, uri, database string, logger *zap.Logger) (*MongoSink, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	logger.Info("MongoDB connected", zap.String("database", database))
	return &MongoSink{
		client:   client,
		database: client.Database(database),
		now:      time.Now,
		logger:   logger.With(zap.String("sink", "mongo")),
	}, nil
}

// Write 将记录写入 destination collection
func (s *MongoSink) Write(ctx context.Context, records []model.QuoteRecord, destination string) error {
	docs := toDocuments(model.FilterValid(records), s.now())
	if len(docs) == 0 {
		return nil
	}

	if _, err := s.database.Collection(destination).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("mongo insert %s: %w", destination, err)
	}
	s.logger.Debug("Documents written", zap.String("collection", destination), zap.Int("count", len(docs)))
	return nil
}

// InsertEvent 写入一条推送事件
func (s *MongoSink) InsertEvent(ctx context.Context, collection string, doc map[string]any) error {
	if _, err := s.database.Collection(collection).InsertOne(ctx, bson.M(doc)); err != nil {
		return fmt.Errorf("mongo insert %s: %w", collection, err)
	}
	return nil
}

func (s *MongoSink) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func toDocuments(records []model.QuoteRecord, now time.Time) []any {
	docs := make([]any, 0, len(records))
	for _, r := range records {
		ts := r.Time
		if ts.IsZero() {
			ts = now
		}
		docs = append(docs, bson.M{
			"measurement": r.Measurement,
			"tags":        r.Tags,
			"fields":      r.Fields,
			"time":        ts,
		})
	}
	return docs
}

package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wikistream/pkg/wikistream"
)

const (
	// DefaultDatabase is the Mongo database holding daily statistics.
	DefaultDatabase = "wikistream"
	// DefaultCollection is the daily-stats collection name.
	DefaultCollection = "daily_stats"
)

// MongoStore persists daily statistics as one document per (lang, date),
// uniquely indexed, with all counter mutations expressed as $inc upserts so
// concurrent writers never race.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection

	closeOnce sync.Once
	closeErr  error
}

// dayDocument is the stored document shape. TopEditors keys are the escaped
// editor identities; display names remain unescaped.
type dayDocument struct {
	Lang        string                    `bson:"lang"`
	Date        time.Time                 `bson:"date"`
	ChangeCount int64                     `bson:"changeCount"`
	TopEditors  map[string]editorDocument `bson:"topEditors"`
}

type editorDocument struct {
	DisplayName string `bson:"displayName"`
	ChangeCount int64  `bson:"changeCount"`
}

// NewMongoStore connects to uri and prepares the stats collection, including
// its unique (lang, date) index.
func NewMongoStore(ctx context.Context, uri string, database string, collection string) (*MongoStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("new mongo store: empty uri")
	}
	if database == "" {
		database = DefaultDatabase
	}
	if collection == "" {
		collection = DefaultCollection
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("new mongo store: connect: %w", err)
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}

	_, err = store.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "lang", Value: 1}, {Key: "date", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("new mongo store: ensure index: %w", err)
	}

	return store, nil
}

// IncrementDaily performs the single atomic upsert for one change event:
// day total and editor count grow together, and the display name is set, so
// the total always equals the sum of editor counts.
func (s *MongoStore) IncrementDaily(ctx context.Context, lang wikistream.LanguageKey, day wikistream.Day, editorKey string, displayName string) error {
	filter := bson.M{"lang": string(lang), "date": day.Time()}
	update := bson.M{
		"$inc": bson.M{
			"changeCount": 1,
			"topEditors." + editorKey + ".changeCount": 1,
		},
		"$set": bson.M{
			"topEditors." + editorKey + ".displayName": displayName,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	result := s.collection.FindOneAndUpdate(ctx, filter, update, opts)
	if err := result.Err(); err != nil {
		return fmt.Errorf("increment daily stats %s/%s: %w", lang, day, err)
	}

	return nil
}

// DailyStats loads the record for (lang, day). Editor keys are returned as
// stored; unescaping is the aggregator's concern.
func (s *MongoStore) DailyStats(ctx context.Context, lang wikistream.LanguageKey, day wikistream.Day) (wikistream.DailyStats, bool, error) {
	var document dayDocument
	err := s.collection.FindOne(ctx, bson.M{"lang": string(lang), "date": day.Time()}).Decode(&document)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return wikistream.DailyStats{}, false, nil
	}
	if err != nil {
		return wikistream.DailyStats{}, false, fmt.Errorf("query daily stats %s/%s: %w", lang, day, err)
	}

	editors := make(map[string]wikistream.EditorStat, len(document.TopEditors))
	for key, editor := range document.TopEditors {
		editors[key] = wikistream.EditorStat{
			DisplayName: editor.DisplayName,
			ChangeCount: editor.ChangeCount,
		}
	}

	return wikistream.DailyStats{
		Lang:        lang,
		Date:        day,
		ChangeCount: document.ChangeCount,
		TopEditors:  editors,
	}, true, nil
}

// RecordCount counts day records across all languages.
func (s *MongoStore) RecordCount(ctx context.Context) (int64, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count daily stats records: %w", err)
	}

	return count, nil
}

// DeleteOlderThan removes records dated before cutoff.
func (s *MongoStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{"date": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("delete stale stats records: %w", err)
	}

	return result.DeletedCount, nil
}

// Close disconnects from the store. Idempotent.
func (s *MongoStore) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if err := s.client.Disconnect(ctx); err != nil {
			s.closeErr = fmt.Errorf("close mongo store: %w", err)
		}
	})

	return s.closeErr
}

// internal/output/mongodb.go
package output

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/valpere/extractstudio/internal/config"
	"github.com/valpere/extractstudio/internal/errors"
	"github.com/valpere/extractstudio/internal/utils"
	"github.com/valpere/extractstudio/pkg/types"
)

// MongoSink upserts records into a collection keyed by source URL.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     utils.Logger
}

const mongoTimeout = 30 * time.Second

// NewMongoSink connects, pings and ensures a unique index on source_url.
func NewMongoSink(ctx context.Context, cfg config.StorageConfig, logger utils.Logger) (*MongoSink, error) {
	if cfg.Database == "" {
		return nil, errors.Output("open storage", fmt.Errorf("MongoDB database name is required"))
	}
	collection := cfg.Table
	if collection == "" {
		collection = DefaultTable
	}

	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.DSN).
		SetServerSelectionTimeout(10 * time.Second).
		SetMaxPoolSize(20)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, errors.Output("open storage", fmt.Errorf("failed to connect to MongoDB: %w", err))
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, errors.Output("open storage", fmt.Errorf("failed to ping MongoDB: %w", err))
	}

	coll := client.Database(cfg.Database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "source_url", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("source_url_unique"),
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, errors.Output("create index", fmt.Errorf("failed to create index on %s: %w", collection, err))
	}

	return &MongoSink{client: client, collection: coll, logger: utils.OrNop(logger)}, nil
}

// Store replaces or inserts every record with one unordered bulk write.
func (s *MongoSink) Store(ctx context.Context, records []types.EnrichedRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, 0, len(records))
	for i := range records {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "source_url", Value: records[i].SourceURL}}).
			SetReplacement(mongoDocument(&records[i])).
			SetUpsert(true))
	}

	result, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, errors.Output("store", fmt.Errorf("bulk write failed: %w", err))
	}
	written := int(result.UpsertedCount + result.MatchedCount)
	s.logger.Infof("stored %d records in MongoDB collection %s", written, s.collection.Name())
	return written, nil
}

// Close disconnects the client.
func (s *MongoSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// mongoDocument converts a record to BSON. The record id is kept apart from
// _id, which must not change when a re-run replaces the document. Custom
// fields go through their plain Go form so nested values stay queryable.
func mongoDocument(rec *types.EnrichedRecord) bson.M {
	blocks := make([]bson.M, 0, len(rec.StructuredElements))
	for _, b := range rec.StructuredElements {
		block := bson.M{"type": b.Type, "content": b.Content, "element_index": b.ElementIndex}
		if b.Language != "" {
			block["language"] = b.Language
		}
		if b.Caption != "" {
			block["caption"] = b.Caption
		}
		if b.Heading != "" {
			block["heading"] = b.Heading
		}
		blocks = append(blocks, block)
	}

	return bson.M{
		"record_id":           rec.ID,
		"source_url":          rec.SourceURL,
		"source_name":         rec.SourceName,
		"source_type":         rec.SourceType,
		"job_label":           rec.JobLabel,
		"title":               rec.Title,
		"language":            rec.Language,
		"quality_score":       rec.QualityScore,
		"categories":          nonNil(rec.Categories),
		"tags":                nonNil(rec.Tags),
		"custom_fields":       rec.CustomFields.ToAnyMap(),
		"structured_elements": blocks,
		"metadata_summary":    rec.MetadataSummary,
		"primary_text":        rec.PrimaryText,
		"degraded":            rec.Degraded,
		"enriched_at":         rec.EnrichedAt.UTC(),
	}
}

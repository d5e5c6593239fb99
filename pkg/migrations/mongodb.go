package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureEnrichmentDeclarationsIndexes creates the indexes ConfRepository's
// queries rely on. It's safe to call on every startup: CreateMany
// tolerates indexes that already exist.
func EnsureEnrichmentDeclarationsIndexes(ctx context.Context, db *mongo.Database, collection string) error {
	coll := db.Collection(collection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetName("idx_enrichment_declarations_name").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "enabled", Value: 1}, {Key: "type", Value: 1}},
			Options: options.Index().SetName("idx_enrichment_declarations_enabled_type"),
		},
	}

	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("create enrichment declaration indexes: %w", err)
		}
	}

	return nil
}

package management

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"enrich/internal/config"
	pkgerrors "enrich/pkg/errors"
)

// ConfRepository is a read-only view over the enrichment declarations
// an operator administers centrally instead of in the static config
// file. It never touches the enrichment set while a Registry build is
// in flight; AssetManager reads a fresh snapshot only at the start of
// each refresh cycle and folds it in alongside the static entries.
type ConfRepository struct {
	client     *mongo.Client
	database   string
	collection string
}

func NewConfRepository(client *mongo.Client, database, collection string) *ConfRepository {
	return &ConfRepository{client: client, database: database, collection: collection}
}

// confDocument mirrors config.EnrichmentConfEntry's field names so a
// document stored by an operator tool decodes without translation.
type confDocument struct {
	Type       string                 `bson:"type"`
	Name       string                 `bson:"name"`
	Enabled    bool                   `bson:"enabled"`
	Parameters map[string]interface{} `bson:"parameters"`
	Assets     []confAssetDocument    `bson:"assets"`
}

type confAssetDocument struct {
	URI          string `bson:"uri"`
	LocalPath    string `bson:"local_path"`
	ExpectedHash string `bson:"expected_hash"`
}

// List returns every enrichment declaration currently administered
// through the repository, in config.EnrichmentConfEntry shape so
// callers can append it directly to the statically configured set.
func (r *ConfRepository) List(ctx context.Context) ([]config.EnrichmentConfEntry, error) {
	if r == nil || r.client == nil {
		return nil, nil
	}

	coll := r.client.Database(r.database).Collection(r.collection)
	cursor, err := coll.Find(ctx, bson.M{}, options.Find())
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal).WithDetail("message", "list enrichment declarations")
	}
	defer cursor.Close(ctx)

	var docs []confDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal).WithDetail("message", "decode enrichment declarations")
	}

	entries := make([]config.EnrichmentConfEntry, 0, len(docs))
	for _, doc := range docs {
		assets := make([]config.AssetRef, 0, len(doc.Assets))
		for _, a := range doc.Assets {
			assets = append(assets, config.AssetRef{
				URI:          a.URI,
				LocalPath:    a.LocalPath,
				ExpectedHash: a.ExpectedHash,
			})
		}
		entries = append(entries, config.EnrichmentConfEntry{
			Type:       doc.Type,
			Name:       doc.Name,
			Enabled:    doc.Enabled,
			Parameters: doc.Parameters,
			Assets:     assets,
		})
	}

	return entries, nil
}

// Get returns the declaration for one enrichment by name, or a
// pkgerrors.ErrNotFound if none is administered under that name.
func (r *ConfRepository) Get(ctx context.Context, name string) (config.EnrichmentConfEntry, error) {
	coll := r.client.Database(r.database).Collection(r.collection)

	var doc confDocument
	if err := coll.FindOne(ctx, bson.M{"name": name}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return config.EnrichmentConfEntry{}, pkgerrors.ErrNotFound.WithDetail("name", name)
		}
		return config.EnrichmentConfEntry{}, pkgerrors.Wrap(err, pkgerrors.ErrInternal).WithDetail("message", "get enrichment declaration")
	}

	assets := make([]config.AssetRef, 0, len(doc.Assets))
	for _, a := range doc.Assets {
		assets = append(assets, config.AssetRef{
			URI:          a.URI,
			LocalPath:    a.LocalPath,
			ExpectedHash: a.ExpectedHash,
		})
	}

	return config.EnrichmentConfEntry{
		Type:       doc.Type,
		Name:       doc.Name,
		Enabled:    doc.Enabled,
		Parameters: doc.Parameters,
		Assets:     assets,
	}, nil
}

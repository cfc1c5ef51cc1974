package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is the document store behind every component. It exposes the
// whole-document primitives (insert, get, save, delete, find, distinct) plus
// the per-document atomic vote update. It enforces no uniqueness itself:
// callers pre-check titles before inserting.
type MongoStore struct {
	client  *mongo.Client
	db      *mongo.Database
	entries *mongo.Collection
}

func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		client:  client,
		db:      db,
		entries: db.Collection(CollectionEntries),
	}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) InsertEntry(ctx context.Context, entry *Entry) (primitive.ObjectID, error) {
	res, err := s.entries.InsertOne(ctx, entry)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("insert entry: %w", err)
	}
	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("insert entry: unexpected id type %T", res.InsertedID)
	}
	entry.ID = id
	return id, nil
}

func (s *MongoStore) GetEntry(ctx context.Context, id primitive.ObjectID) (Entry, error) {
	var entry Entry
	if err := s.entries.FindOne(ctx, bson.M{"_id": id}).Decode(&entry); err != nil {
		if err == mongo.ErrNoDocuments {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("get entry %s: %w", id.Hex(), err)
	}
	return entry, nil
}

// SaveEntry replaces the whole document. Last writer wins; there is no
// concurrency token.
func (s *MongoStore) SaveEntry(ctx context.Context, entry Entry) error {
	res, err := s.entries.ReplaceOne(ctx, bson.M{"_id": entry.ID}, entry)
	if err != nil {
		return fmt.Errorf("save entry %s: %w", entry.ID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *MongoStore) DeleteEntry(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.entries.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id.Hex(), err)
	}
	if res.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Find runs an arbitrary filter with an explicit sort and limit. limit <= 0
// means unbounded.
func (s *MongoStore) Find(ctx context.Context, filter any, sortSpec bson.D, limit int64) ([]Entry, error) {
	opts := options.Find()
	if len(sortSpec) > 0 {
		opts.SetSort(sortSpec)
	}
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.entries.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find entries: %w", err)
	}
	defer cur.Close(ctx)

	var entries []Entry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	return entries, nil
}

// Distinct returns the sorted distinct string values of field across every
// document matching filter.
func (s *MongoStore) Distinct(ctx context.Context, field string, filter any) ([]string, error) {
	raw, err := s.entries.Distinct(ctx, field, filter)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", field, err)
	}
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok && str != "" {
			values = append(values, str)
		}
	}
	sort.Strings(values)
	return values, nil
}

// FindByTitle looks up every entry under a normalized title. Insertion order
// by default; byVotes switches to vote count descending, the order the
// original define view used.
func (s *MongoStore) FindByTitle(ctx context.Context, title string, byVotes bool) ([]Entry, error) {
	sortSpec := bson.D{{Key: "_id", Value: 1}}
	if byVotes {
		sortSpec = bson.D{{Key: "votes", Value: -1}, {Key: "_id", Value: 1}}
	}
	return s.Find(ctx, bson.M{"title": NormalizeTitle(title)}, sortSpec, 0)
}

// ListEntries returns the entries of a category (and optionally a topic) in
// insertion order.
func (s *MongoStore) ListEntries(ctx context.Context, category, topic string) ([]Entry, error) {
	filter := bson.M{"category": category}
	if topic != "" {
		filter["topic"] = topic
	}
	return s.Find(ctx, filter, bson.D{{Key: "_id", Value: 1}}, 0)
}

func (s *MongoStore) Categories(ctx context.Context) ([]string, error) {
	return s.Distinct(ctx, "category", bson.M{})
}

func (s *MongoStore) Topics(ctx context.Context, category string) ([]string, error) {
	return s.Distinct(ctx, "topic", bson.M{"category": category})
}

func (s *MongoStore) CountByAuthorTitle(ctx context.Context, authorID, title string) (int64, error) {
	count, err := s.entries.CountDocuments(ctx, bson.M{
		"author_id": authorID,
		"title":     NormalizeTitle(title),
	})
	if err != nil {
		return 0, fmt.Errorf("count author entries: %w", err)
	}
	return count, nil
}

// AddVote appends voterID to the voter set and adjusts the vote counter in a
// single document update. The filter rejects voters already present, so a
// concurrent duplicate vote loses at the store rather than in memory.
func (s *MongoStore) AddVote(ctx context.Context, id primitive.ObjectID, voterID string, delta int, now time.Time) (bool, error) {
	res, err := s.entries.UpdateOne(ctx,
		bson.M{"_id": id, "voters": bson.M{"$ne": voterID}},
		bson.M{
			"$addToSet": bson.M{"voters": voterID},
			"$inc":      bson.M{"votes": delta},
			"$set":      bson.M{"last_updated": now},
		},
	)
	if err != nil {
		return false, fmt.Errorf("add vote %s: %w", id.Hex(), err)
	}
	return res.ModifiedCount == 1, nil
}

// ReassignCategory moves every entry of a category into the default bucket.
// Topics are preserved; entries are never deleted by taxonomy changes.
func (s *MongoStore) ReassignCategory(ctx context.Context, category string) (int64, error) {
	res, err := s.entries.UpdateMany(ctx,
		bson.M{"category": category},
		bson.M{"$set": bson.M{"category": DefaultBucket, "last_updated": time.Now().UTC()}},
	)
	if err != nil {
		return 0, fmt.Errorf("reassign category %q: %w", category, err)
	}
	return res.ModifiedCount, nil
}

// ReassignTopic moves every entry of a topic into the default topic bucket
// within its category.
func (s *MongoStore) ReassignTopic(ctx context.Context, category, topic string) (int64, error) {
	res, err := s.entries.UpdateMany(ctx,
		bson.M{"category": category, "topic": topic},
		bson.M{"$set": bson.M{"topic": DefaultBucket, "last_updated": time.Now().UTC()}},
	)
	if err != nil {
		return 0, fmt.Errorf("reassign topic %q/%q: %w", category, topic, err)
	}
	return res.ModifiedCount, nil
}

// SearchText runs a $text query over the entry text index, best matches
// first. An empty category searches everything.
func (s *MongoStore) SearchText(ctx context.Context, query, category string, limit int64) ([]Entry, error) {
	filter := bson.M{"$text": bson.M{"$search": query}}
	if category != "" {
		filter["category"] = category
	}
	opts := options.Find().
		SetSort(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.entries.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	defer cur.Close(ctx)

	var entries []Entry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode text search: %w", err)
	}
	return entries, nil
}

// AllEntries streams the full collection in insertion order, used by the
// admin reindex path.
func (s *MongoStore) AllEntries(ctx context.Context) ([]Entry, error) {
	return s.Find(ctx, bson.M{}, bson.D{{Key: "_id", Value: 1}}, 0)
}

func (s *MongoStore) EntriesEmpty(ctx context.Context) (bool, error) {
	count, err := s.entries.CountDocuments(ctx, bson.M{}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count entries: %w", err)
	}
	return count == 0, nil
}

func (s *MongoStore) InsertEntries(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]any, len(entries))
	for i := range entries {
		docs[i] = entries[i]
	}
	if _, err := s.entries.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert entries: %w", err)
	}
	return nil
}

// ListIndexes reads the live index catalog of the entry collection, skipping
// the implicit _id index.
func (s *MongoStore) ListIndexes(ctx context.Context) ([]CatalogIndex, error) {
	cur, err := s.entries.Indexes().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	defer cur.Close(ctx)

	var catalog []CatalogIndex
	for cur.Next(ctx) {
		var idx CatalogIndex
		if err := cur.Decode(&idx); err != nil {
			return nil, fmt.Errorf("decode index: %w", err)
		}
		if idx.Name == "_id_" {
			continue
		}
		catalog = append(catalog, idx)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate indexes: %w", err)
	}
	return catalog, nil
}

func (s *MongoStore) CreateIndex(ctx context.Context, spec IndexSpec) error {
	opts := options.Index().SetName(spec.Name)
	if spec.Unique {
		opts.SetUnique(true)
	}
	if _, err := s.entries.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: spec.Keys, Options: opts}); err != nil {
		return fmt.Errorf("create index %s: %w", spec.Name, err)
	}
	return nil
}

func (s *MongoStore) DropIndex(ctx context.Context, name string) error {
	if _, err := s.entries.Indexes().DropOne(ctx, name); err != nil {
		return fmt.Errorf("drop index %s: %w", name, err)
	}
	return nil
}

func (s *MongoStore) LegacyExists(ctx context.Context) (bool, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.M{"name": CollectionLegacy})
	if err != nil {
		return false, fmt.Errorf("probe legacy collection: %w", err)
	}
	return len(names) > 0, nil
}

// LegacyRows bulk-reads the legacy collection as raw documents so the
// migration engine can decode row by row and skip malformed ones.
func (s *MongoStore) LegacyRows(ctx context.Context) ([]bson.Raw, error) {
	cur, err := s.db.Collection(CollectionLegacy).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("read legacy rows: %w", err)
	}
	defer cur.Close(ctx)

	var rows []bson.Raw
	for cur.Next(ctx) {
		var raw bson.Raw
		if err := cur.Decode(&raw); err != nil {
			return nil, fmt.Errorf("read legacy row: %w", err)
		}
		rows = append(rows, raw)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate legacy rows: %w", err)
	}
	return rows, nil
}

// RenameLegacy moves the legacy collection aside under its backup name. The
// data is retained, never deleted.
func (s *MongoStore) RenameLegacy(ctx context.Context) error {
	dbName := s.db.Name()
	cmd := bson.D{
		{Key: "renameCollection", Value: dbName + "." + CollectionLegacy},
		{Key: "to", Value: dbName + "." + CollectionLegacyBackup},
		{Key: "dropTarget", Value: false},
	}
	if err := s.client.Database("admin").RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("rename legacy collection: %w", err)
	}
	return nil
}

func (s *MongoStore) HasMarker(ctx context.Context, id string) (bool, error) {
	err := s.db.Collection(CollectionMigrationState).FindOne(ctx, bson.M{"_id": id}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read migration marker: %w", err)
	}
	return true, nil
}

func (s *MongoStore) WriteMarker(ctx context.Context, marker MigrationMarker) error {
	if _, err := s.db.Collection(CollectionMigrationState).InsertOne(ctx, marker); err != nil {
		return fmt.Errorf("write migration marker: %w", err)
	}
	return nil
}

func (s *MongoStore) Marker(ctx context.Context, id string) (MigrationMarker, error) {
	var marker MigrationMarker
	err := s.db.Collection(CollectionMigrationState).FindOne(ctx, bson.M{"_id": id}).Decode(&marker)
	if err == mongo.ErrNoDocuments {
		return MigrationMarker{}, err
	}
	if err != nil {
		return MigrationMarker{}, fmt.Errorf("read migration marker: %w", err)
	}
	return marker, nil
}

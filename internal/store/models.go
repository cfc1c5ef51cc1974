package store

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// DefaultBucket is the category and topic every entry falls back to.
	// Retiring a category or topic reassigns its entries here; entries are
	// never deleted by taxonomy changes.
	DefaultBucket = "General"

	CollectionEntries        = "glossary_entries"
	CollectionLegacy         = "typology_definitions"
	CollectionLegacyBackup   = "typology_definitions_backup"
	CollectionMigrationState = "migration_state"
)

// Entry is one glossary submission. Votes and Voters move together: votes
// always equals len(voters), and voters only ever grows.
type Entry struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title         string             `bson:"title" json:"title"`
	Category      string             `bson:"category" json:"category"`
	Topic         string             `bson:"topic" json:"topic"`
	Description   string             `bson:"description" json:"description"`
	AuthorID      string             `bson:"author_id" json:"authorId"`
	AuthorName    string             `bson:"author_name" json:"authorName"`
	Reference     string             `bson:"reference,omitempty" json:"reference,omitempty"`
	ImageRef      string             `bson:"image_ref,omitempty" json:"imageRef,omitempty"`
	Votes         int                `bson:"votes" json:"votes"`
	Voters        []string           `bson:"voters" json:"-"`
	CreatedAt     time.Time          `bson:"created_at" json:"createdAt"`
	LastUpdatedAt time.Time          `bson:"last_updated" json:"lastUpdatedAt"`
}

// HasVoter reports whether userID already appears in the voter set.
func (e *Entry) HasVoter(userID string) bool {
	for _, v := range e.Voters {
		if v == userID {
			return true
		}
	}
	return false
}

// NormalizeTitle produces the canonical stored form of a title. The legacy
// writer upper-cased terms at insert time and lookups rely on it.
func NormalizeTitle(title string) string {
	return strings.ToUpper(strings.TrimSpace(title))
}

// LegacyDefinition is the pre-hierarchy document shape, read only by the
// migration engine. Kept separate from Entry so legacy field quirks (numeric
// author ids, missing category/topic) never leak into the current schema.
type LegacyDefinition struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Term       string             `bson:"term"`
	Text       string             `bson:"text"`
	AuthorID   int64              `bson:"author_id"`
	AuthorName string             `bson:"author_name"`
	Reference  string             `bson:"reference,omitempty"`
	Votes      int                `bson:"votes"`
	Voters     []int64            `bson:"voters"`
	CreatedAt  time.Time          `bson:"created_at"`
	UpdatedAt  time.Time          `bson:"last_updated"`
}

// MigrationMarker records a completed migration pass. Written only after the
// legacy collection has been transformed and renamed.
type MigrationMarker struct {
	ID          string    `bson:"_id"`
	Migrated    int       `bson:"migrated"`
	Skipped     int       `bson:"skipped"`
	CompletedAt time.Time `bson:"completed_at"`
}

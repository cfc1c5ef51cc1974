package search

import "context"

// Record is the entry shape pushed into the search index.
type Record struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Topic       string `json:"topic"`
	AuthorName  string `json:"authorName"`
	Votes       int    `json:"votes"`
}

// Query describes a search request.
type Query struct {
	Text     string
	Category string // empty = all categories
	Limit    int64
}

// Hit is a single search hit: the entry id plus display fragments.
type Hit struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Hit, int, error)
	Healthy() bool
}

// Indexer can push entries into a search index.
type Indexer interface {
	IndexEntry(rec Record) error
	DeleteEntry(id string) error
	IndexEntries(records []Record) error
}

package search

import (
	"context"
	"strings"
	"unicode/utf8"

	"glossa/bot/internal/store"
)

const snippetLen = 160

type textStore interface {
	SearchText(ctx context.Context, query, category string, limit int64) ([]store.Entry, error)
}

// MongoText implements Searcher over the document store's text index, used as
// the fallback when Meilisearch is not configured or down.
type MongoText struct {
	store textStore
}

func NewMongoText(dataStore *store.MongoStore) *MongoText {
	return &MongoText{store: dataStore}
}

// Healthy always returns true. If the document store is down, the whole bot
// is down.
func (m *MongoText) Healthy() bool {
	return true
}

func (m *MongoText) Search(ctx context.Context, q Query) ([]Hit, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	entries, err := m.store.SearchText(ctx, q.Text, q.Category, limit)
	if err != nil {
		return nil, 0, err
	}

	hits := make([]Hit, 0, len(entries))
	for _, entry := range entries {
		hits = append(hits, Hit{
			ID:      entry.ID.Hex(),
			Title:   entry.Title,
			Snippet: snippet(entry.Description),
		})
	}
	return hits, len(hits), nil
}

// snippet folds whitespace and crops the description for one-line display.
func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= snippetLen {
		return text
	}
	runes := []rune(text)
	cut := snippetLen
	for cut > 0 && runes[cut-1] != ' ' {
		cut--
	}
	if cut == 0 {
		cut = snippetLen
	}
	return strings.TrimSpace(string(runes[:cut])) + "…"
}

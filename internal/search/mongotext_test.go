package search

import (
	"context"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"glossa/bot/internal/store"
)

type fakeTextStore struct {
	searchTextFn func(context.Context, string, string, int64) ([]store.Entry, error)
	calls        int
}

func (f *fakeTextStore) SearchText(ctx context.Context, query, category string, limit int64) ([]store.Entry, error) {
	f.calls++
	if f.searchTextFn != nil {
		return f.searchTextFn(ctx, query, category, limit)
	}
	return nil, nil
}

func TestMongoTextSearch(t *testing.T) {
	entry := store.Entry{
		ID:          primitive.NewObjectID(),
		Title:       "FE",
		Description: "Extraverted   feeling,\nthe relational function.",
	}
	fs := &fakeTextStore{searchTextFn: func(_ context.Context, query, category string, limit int64) ([]store.Entry, error) {
		if query != "feeling" || category != "Typology" || limit != 5 {
			t.Fatalf("store got query=%q category=%q limit=%d", query, category, limit)
		}
		return []store.Entry{entry}, nil
	}}
	mt := &MongoText{store: fs}

	hits, total, err := mt.Search(context.Background(), Query{Text: "feeling", Category: "Typology", Limit: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if total != 1 || len(hits) != 1 {
		t.Fatalf("got %d hits (total %d), want 1", len(hits), total)
	}
	if hits[0].ID != entry.ID.Hex() {
		t.Fatalf("hit ID = %q, want the entry's hex id", hits[0].ID)
	}
	if hits[0].Snippet != "Extraverted feeling, the relational function." {
		t.Fatalf("snippet = %q, want whitespace folded", hits[0].Snippet)
	}
}

func TestMongoTextSkipsBlankQuery(t *testing.T) {
	fs := &fakeTextStore{}
	mt := &MongoText{store: fs}

	hits, total, err := mt.Search(context.Background(), Query{Text: "   "})
	if err != nil || total != 0 || len(hits) != 0 {
		t.Fatalf("blank query: hits=%v total=%d err=%v", hits, total, err)
	}
	if fs.calls != 0 {
		t.Fatalf("blank query must not reach the store")
	}
}

func TestSnippetCropsAtWordBoundary(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := snippet(long)
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("long text must be cropped with an ellipsis, got %q", got)
	}
	if strings.Contains(got, "wor…") {
		t.Fatalf("crop must land on a word boundary, got %q", got)
	}
	if len([]rune(got)) > snippetLen+1 {
		t.Fatalf("snippet too long: %d runes", len([]rune(got)))
	}
}

package search

import (
	"context"

	"go.uber.org/zap"
)

type meiliClient interface {
	Searcher
	Indexer
}

// Service is the facade that tries Meilisearch first and falls back to the
// document store's text index. It never surfaces search errors to callers;
// a broken search degrades to empty results, not a failed action.
type Service struct {
	meili    meiliClient
	fallback Searcher
	log      *zap.SugaredLogger
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili *Meili, fallback *MongoText, log *zap.SugaredLogger) *Service {
	s := &Service{fallback: fallback, log: log}
	if meili != nil {
		s.meili = meili
	}
	return s
}

func (s *Service) Search(ctx context.Context, q Query) []Hit {
	if s.meili != nil && s.meili.Healthy() {
		hits, _, err := s.meili.Search(ctx, q)
		if err == nil {
			return nonNil(hits)
		}
		s.log.Warnw("meilisearch error, falling back to store text search", "error", err)
	}

	hits, _, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.Warnw("store text search failed", "error", err)
		return []Hit{}
	}
	return nonNil(hits)
}

// IndexEntry pushes one entry to Meilisearch, fire-and-forget.
func (s *Service) IndexEntry(rec Record) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexEntry(rec); err != nil {
			s.log.Warnw("index entry", "id", rec.ID, "error", err)
		}
	}()
}

// RemoveEntry removes an entry from Meilisearch, fire-and-forget.
func (s *Service) RemoveEntry(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteEntry(id); err != nil {
			s.log.Warnw("remove entry from index", "id", id, "error", err)
		}
	}()
}

// ReindexAll bulk-pushes every record to Meilisearch. Used at startup when
// the index may be empty and by the admin reindex endpoint.
func (s *Service) ReindexAll(_ context.Context, records []Record) {
	if s.meili == nil || !s.meili.Healthy() || len(records) == 0 {
		return
	}
	if err := s.meili.IndexEntries(records); err != nil {
		s.log.Warnw("reindex entries", "count", len(records), "error", err)
	}
}

func nonNil(hits []Hit) []Hit {
	if hits == nil {
		return []Hit{}
	}
	return hits
}

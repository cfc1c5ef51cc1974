package glossary

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"glossa/bot/internal/rbac"
	"glossa/bot/internal/search"
	"glossa/bot/internal/store"
)

const (
	maxTitleLen       = 100
	maxDescriptionLen = 2000
)

// Actor is the platform user behind an action, as reported by the gateway.
type Actor struct {
	ID    string
	Name  string
	Roles []string
}

type CreateEntryInput struct {
	Title         string
	Category      string
	Topic         string
	Description   string
	Reference     string
	ImageURL      string
	AttachmentURL string
}

// EditEntryInput carries the fields an edit may change. Blank fields keep
// their current value.
type EditEntryInput struct {
	Description string
	Reference   string
	ImageRef    string
}

type dataStore interface {
	InsertEntry(ctx context.Context, entry *store.Entry) (primitive.ObjectID, error)
	GetEntry(ctx context.Context, id primitive.ObjectID) (store.Entry, error)
	SaveEntry(ctx context.Context, entry store.Entry) error
	DeleteEntry(ctx context.Context, id primitive.ObjectID) error
	FindByTitle(ctx context.Context, title string, byVotes bool) ([]store.Entry, error)
	ListEntries(ctx context.Context, category, topic string) ([]store.Entry, error)
	Categories(ctx context.Context) ([]string, error)
	Topics(ctx context.Context, category string) ([]string, error)
	CountByAuthorTitle(ctx context.Context, authorID, title string) (int64, error)
	AddVote(ctx context.Context, id primitive.ObjectID, voterID string, delta int, now time.Time) (bool, error)
	ReassignCategory(ctx context.Context, category string) (int64, error)
	ReassignTopic(ctx context.Context, category, topic string) (int64, error)
	AllEntries(ctx context.Context) ([]store.Entry, error)
}

type searchIndex interface {
	Search(ctx context.Context, q search.Query) []search.Hit
	IndexEntry(rec search.Record)
	RemoveEntry(id string)
	ReindexAll(ctx context.Context, records []search.Record)
}

type Service struct {
	store  dataStore
	search searchIndex
	policy *rbac.Policy
	log    *zap.SugaredLogger
}

func New(dataStore *store.MongoStore, searchService *search.Service, policy *rbac.Policy, log *zap.SugaredLogger) *Service {
	return &Service{
		store:  dataStore,
		search: searchService,
		policy: policy,
		log:    log,
	}
}

func (s *Service) CreateEntry(ctx context.Context, actor Actor, input CreateEntryInput) (store.Entry, error) {
	title := store.NormalizeTitle(input.Title)
	if title == "" {
		return store.Entry{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a title is required", nil)
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return store.Entry{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is too long (100 characters max)", nil)
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return store.Entry{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a description is required", nil)
	}
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return store.Entry{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "description is too long (2000 characters max)", nil)
	}

	// Case-folded per-author uniqueness is checked, not enforced by a unique
	// index, so a concurrent create can still slip through. Accepted.
	count, err := s.store.CountByAuthorTitle(ctx, actor.ID, title)
	if err != nil {
		return store.Entry{}, err
	}
	if count > 0 {
		return store.Entry{}, domainError(http.StatusConflict, "DUPLICATE_TITLE", "you already have an entry with this title", nil)
	}

	now := time.Now().UTC()
	entry := store.Entry{
		Title:         title,
		Category:      normalizeBucket(input.Category),
		Topic:         normalizeBucket(input.Topic),
		Description:   description,
		AuthorID:      actor.ID,
		AuthorName:    actor.Name,
		Reference:     strings.TrimSpace(input.Reference),
		ImageRef:      imageRef(input),
		Votes:         1,
		Voters:        []string{actor.ID},
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	if _, err := s.store.InsertEntry(ctx, &entry); err != nil {
		return store.Entry{}, err
	}
	s.search.IndexEntry(entryRecord(entry))
	return entry, nil
}

func (s *Service) BrowseByTitle(ctx context.Context, title string, byVotes bool) ([]store.Entry, error) {
	if store.NormalizeTitle(title) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a title to look up is required", nil)
	}
	return s.store.FindByTitle(ctx, title, byVotes)
}

func (s *Service) ListEntries(ctx context.Context, category, topic string) ([]store.Entry, error) {
	return s.store.ListEntries(ctx, strings.TrimSpace(category), strings.TrimSpace(topic))
}

func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.store.Categories(ctx)
}

func (s *Service) Topics(ctx context.Context, category string) ([]string, error) {
	return s.store.Topics(ctx, strings.TrimSpace(category))
}

func (s *Service) Vote(ctx context.Context, actor Actor, entry *store.Entry) (bool, error) {
	accepted, err := s.TryAddVote(ctx, entry, actor.ID, 1)
	if err != nil {
		return false, err
	}
	if accepted {
		s.search.IndexEntry(entryRecord(*entry))
	}
	return accepted, nil
}

func (s *Service) EditEntry(ctx context.Context, actor Actor, entry *store.Entry, input EditEntryInput) error {
	if !s.policy.Can(rbac.ActionEdit, entry.AuthorID == actor.ID, actor.Roles) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "only the author can edit this entry", nil)
	}

	description := strings.TrimSpace(input.Description)
	reference := strings.TrimSpace(input.Reference)
	image := strings.TrimSpace(input.ImageRef)
	if description == "" && reference == "" && image == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "nothing to change", nil)
	}
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "description is too long (2000 characters max)", nil)
	}

	if description != "" {
		entry.Description = description
	}
	if reference != "" {
		entry.Reference = reference
	}
	if image != "" {
		entry.ImageRef = image
	}
	entry.LastUpdatedAt = time.Now().UTC()
	if err := s.store.SaveEntry(ctx, *entry); err != nil {
		return err
	}
	s.search.IndexEntry(entryRecord(*entry))
	return nil
}

func (s *Service) MoveEntry(ctx context.Context, actor Actor, entry *store.Entry, category, topic string) error {
	if !s.policy.Can(rbac.ActionMove, entry.AuthorID == actor.ID, actor.Roles) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "only the author can move this entry", nil)
	}
	entry.Category = normalizeBucket(category)
	entry.Topic = normalizeBucket(topic)
	entry.LastUpdatedAt = time.Now().UTC()
	if err := s.store.SaveEntry(ctx, *entry); err != nil {
		return err
	}
	s.search.IndexEntry(entryRecord(*entry))
	return nil
}

func (s *Service) DeleteEntry(ctx context.Context, actor Actor, entry *store.Entry) error {
	if !s.policy.Can(rbac.ActionDelete, entry.AuthorID == actor.ID, actor.Roles) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "only the author or a moderator can delete this entry", nil)
	}
	if err := s.store.DeleteEntry(ctx, entry.ID); err != nil {
		return err
	}
	s.search.RemoveEntry(entry.ID.Hex())
	return nil
}

// RetireCategory reassigns every entry of a category to the default bucket.
// Entries are never deleted by taxonomy cleanup.
func (s *Service) RetireCategory(ctx context.Context, actor Actor, category string) (int64, error) {
	if !s.policy.Can(rbac.ActionRetire, false, actor.Roles) {
		return 0, domainError(http.StatusForbidden, "FORBIDDEN", "retiring categories requires the moderator role", nil)
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return 0, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a category is required", nil)
	}
	if strings.EqualFold(category, store.DefaultBucket) {
		return 0, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "the default bucket cannot be retired", nil)
	}
	moved, err := s.store.ReassignCategory(ctx, category)
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		s.reindexAll(ctx)
	}
	return moved, nil
}

func (s *Service) RetireTopic(ctx context.Context, actor Actor, category, topic string) (int64, error) {
	if !s.policy.Can(rbac.ActionRetire, false, actor.Roles) {
		return 0, domainError(http.StatusForbidden, "FORBIDDEN", "retiring topics requires the moderator role", nil)
	}
	category = strings.TrimSpace(category)
	topic = strings.TrimSpace(topic)
	if category == "" || topic == "" {
		return 0, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a category and topic are required", nil)
	}
	if strings.EqualFold(topic, store.DefaultBucket) {
		return 0, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "the default bucket cannot be retired", nil)
	}
	moved, err := s.store.ReassignTopic(ctx, category, topic)
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		s.reindexAll(ctx)
	}
	return moved, nil
}

func (s *Service) Search(ctx context.Context, query, category string, limit int64) ([]store.Entry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a search query is required", nil)
	}

	hits := s.search.Search(ctx, search.Query{Text: query, Category: strings.TrimSpace(category), Limit: limit})
	entries := make([]store.Entry, 0, len(hits))
	for _, hit := range hits {
		id, err := primitive.ObjectIDFromHex(hit.ID)
		if err != nil {
			continue
		}
		entry, err := s.store.GetEntry(ctx, id)
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Deleted since it was indexed.
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Reindex pushes every stored entry into the search index. Used by the admin
// surface and after bulk taxonomy changes.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	entries, err := s.store.AllEntries(ctx)
	if err != nil {
		return 0, err
	}
	records := make([]search.Record, 0, len(entries))
	for _, entry := range entries {
		records = append(records, entryRecord(entry))
	}
	s.search.ReindexAll(ctx, records)
	return len(records), nil
}

func (s *Service) reindexAll(ctx context.Context) {
	if _, err := s.Reindex(ctx); err != nil {
		s.log.Warnw("reindex after taxonomy change failed", "error", err)
	}
}

func entryRecord(entry store.Entry) search.Record {
	return search.Record{
		ID:          entry.ID.Hex(),
		Title:       entry.Title,
		Description: entry.Description,
		Category:    entry.Category,
		Topic:       entry.Topic,
		AuthorName:  entry.AuthorName,
		Votes:       entry.Votes,
	}
}

func imageRef(input CreateEntryInput) string {
	if ref := strings.TrimSpace(input.AttachmentURL); ref != "" {
		return ref
	}
	return strings.TrimSpace(input.ImageURL)
}

func normalizeBucket(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return store.DefaultBucket
	}
	return value
}

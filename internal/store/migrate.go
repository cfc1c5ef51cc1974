package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// MarkerID names the one structural migration this service knows.
const MarkerID = "typology_definitions->glossary_entries"

// Migration states as reported to the admin surface.
const (
	MigrationComplete = "complete" // marker present, nothing to do
	MigrationFresh    = "fresh"    // no legacy collection, nothing to migrate
	MigrationBlocked  = "blocked"  // target non-empty without a marker: needs operator attention
	MigrationApplied  = "migrated" // this run performed the transform
)

type MigrationReport struct {
	State    string `json:"state"`
	Migrated int    `json:"migrated"`
	Skipped  int    `json:"skipped"`
}

type migrationStore interface {
	HasMarker(ctx context.Context, id string) (bool, error)
	LegacyExists(ctx context.Context) (bool, error)
	EntriesEmpty(ctx context.Context) (bool, error)
	LegacyRows(ctx context.Context) ([]bson.Raw, error)
	InsertEntries(ctx context.Context, entries []Entry) error
	RenameLegacy(ctx context.Context) error
	WriteMarker(ctx context.Context, marker MigrationMarker) error
}

// Migrator performs the one-time flat-to-hierarchical schema transform. The
// probe phase (marker, existence, emptiness, bulk read) is read-only and
// retried on transient failures. Once writing begins there are no retries:
// a failure there must fail startup so nobody serves half-migrated data.
type Migrator struct {
	store   migrationStore
	log     *zap.SugaredLogger
	retries int
	backoff time.Duration
}

func NewMigrator(store migrationStore, log *zap.SugaredLogger, retries int, backoff time.Duration) *Migrator {
	if retries < 1 {
		retries = 1
	}
	return &Migrator{store: store, log: log, retries: retries, backoff: backoff}
}

func (m *Migrator) Run(ctx context.Context) (MigrationReport, error) {
	report, rows, done, err := m.probe(ctx)
	if err != nil || done {
		return report, err
	}

	entries := make([]Entry, 0, len(rows))
	skipped := 0
	now := time.Now().UTC()
	for _, raw := range rows {
		var legacy LegacyDefinition
		if err := bson.Unmarshal(raw, &legacy); err != nil {
			m.log.Warnw("skipping undecodable legacy row", "error", err)
			skipped++
			continue
		}
		if strings.TrimSpace(legacy.Term) == "" {
			m.log.Warnw("skipping legacy row without a term", "id", legacy.ID.Hex())
			skipped++
			continue
		}
		entries = append(entries, legacyToEntry(legacy, now))
	}

	if err := m.store.InsertEntries(ctx, entries); err != nil {
		return MigrationReport{}, fmt.Errorf("migrate legacy rows: %w", err)
	}
	if err := m.store.RenameLegacy(ctx); err != nil {
		return MigrationReport{}, fmt.Errorf("archive legacy collection: %w", err)
	}
	if err := m.store.WriteMarker(ctx, MigrationMarker{
		ID:          MarkerID,
		Migrated:    len(entries),
		Skipped:     skipped,
		CompletedAt: now,
	}); err != nil {
		return MigrationReport{}, fmt.Errorf("record migration completion: %w", err)
	}

	m.log.Infow("legacy migration complete", "migrated", len(entries), "skipped", skipped)
	return MigrationReport{State: MigrationApplied, Migrated: len(entries), Skipped: skipped}, nil
}

// probe decides whether to migrate at all. done=true means the report is
// final and no write phase follows.
func (m *Migrator) probe(ctx context.Context) (report MigrationReport, rows []bson.Raw, done bool, err error) {
	backoff := m.backoff
	var lastErr error
	for attempt := 1; attempt <= m.retries; attempt++ {
		report, rows, done, lastErr = m.probeOnce(ctx)
		if lastErr == nil {
			return report, rows, done, nil
		}
		m.log.Warnw("migration probe failed", "attempt", attempt, "error", lastErr)
		if attempt == m.retries {
			break
		}
		select {
		case <-ctx.Done():
			return MigrationReport{}, nil, false, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return MigrationReport{}, nil, false, fmt.Errorf("migration probe after %d attempts: %w", m.retries, lastErr)
}

func (m *Migrator) probeOnce(ctx context.Context) (MigrationReport, []bson.Raw, bool, error) {
	marked, err := m.store.HasMarker(ctx, MarkerID)
	if err != nil {
		return MigrationReport{}, nil, false, err
	}
	if marked {
		return MigrationReport{State: MigrationComplete}, nil, true, nil
	}

	legacy, err := m.store.LegacyExists(ctx)
	if err != nil {
		return MigrationReport{}, nil, false, err
	}
	if !legacy {
		return MigrationReport{State: MigrationFresh}, nil, true, nil
	}

	empty, err := m.store.EntriesEmpty(ctx)
	if err != nil {
		return MigrationReport{}, nil, false, err
	}
	if !empty {
		// A non-empty target without a completion marker means an earlier
		// run died mid-way (or predates markers). Migrating again would
		// duplicate rows, so refuse and surface it instead.
		m.log.Errorw("legacy collection present but target is non-empty without a completion marker; skipping migration, manual reconciliation required")
		return MigrationReport{State: MigrationBlocked}, nil, true, nil
	}

	rows, err := m.store.LegacyRows(ctx)
	if err != nil {
		return MigrationReport{}, nil, false, err
	}
	return MigrationReport{}, rows, false, nil
}

// legacyToEntry maps the flat legacy shape onto the hierarchical one. Both
// taxonomy fields land in the default bucket, and the vote counter is clamped
// to the voter set so the invariant holds from the first read.
func legacyToEntry(legacy LegacyDefinition, now time.Time) Entry {
	voters := make([]string, 0, len(legacy.Voters))
	for _, v := range legacy.Voters {
		voters = append(voters, strconv.FormatInt(v, 10))
	}

	created := legacy.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := legacy.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	return Entry{
		Title:         NormalizeTitle(legacy.Term),
		Category:      DefaultBucket,
		Topic:         DefaultBucket,
		Description:   legacy.Text,
		AuthorID:      strconv.FormatInt(legacy.AuthorID, 10),
		AuthorName:    legacy.AuthorName,
		Reference:     legacy.Reference,
		Votes:         len(voters),
		Voters:        voters,
		CreatedAt:     created,
		LastUpdatedAt: updated,
	}
}

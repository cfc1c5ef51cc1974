package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// IndexSpec declares one desired secondary index. Text keys use the literal
// value "text"; everything else is 1 or -1.
type IndexSpec struct {
	Name   string
	Keys   bson.D
	Unique bool
}

// CatalogIndex is an index as the server reports it. Text indexes come back
// with synthetic _fts/_ftsx keys and the indexed fields under weights.
type CatalogIndex struct {
	Name    string `bson:"name"`
	Key     bson.D `bson:"key"`
	Weights bson.D `bson:"weights,omitempty"`
	Unique  bool   `bson:"unique,omitempty"`
}

// DesiredIndexes is the index set the entry collection converges to on every
// startup.
func DesiredIndexes() []IndexSpec {
	return []IndexSpec{
		{
			Name: "entry_text_search",
			Keys: bson.D{{Key: "title", Value: "text"}, {Key: "description", Value: "text"}},
		},
		{
			Name: "title_popularity",
			Keys: bson.D{{Key: "title", Value: 1}, {Key: "votes", Value: -1}},
		},
		{
			Name: "category_topic",
			Keys: bson.D{{Key: "category", Value: 1}, {Key: "topic", Value: 1}, {Key: "title", Value: 1}},
		},
		{
			Name: "voter_lookup",
			Keys: bson.D{{Key: "voters", Value: 1}},
		},
		{
			Name: "author_entries",
			Keys: bson.D{{Key: "author_id", Value: 1}},
		},
	}
}

// Signature reduces the spec's key list to the canonical ordering-insensitive
// form used for catalog comparison.
func (s IndexSpec) Signature() string {
	parts := make([]string, 0, len(s.Keys))
	for _, elem := range s.Keys {
		parts = append(parts, elem.Key+":"+directionLabel(elem.Value))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// Signature normalizes the catalog form: the _fts/_ftsx bookkeeping keys of a
// text index are replaced by one field:text pair per weighted field, so a
// text index compares equal to the spec that declared it.
func (c CatalogIndex) Signature() string {
	var parts []string
	isText := false
	for _, elem := range c.Key {
		if elem.Key == "_fts" || elem.Key == "_ftsx" {
			isText = true
			continue
		}
		parts = append(parts, elem.Key+":"+directionLabel(elem.Value))
	}
	if isText {
		for _, w := range c.Weights {
			parts = append(parts, w.Key+":text")
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// directionLabel folds the numeric type zoo the driver can hand back (int,
// int32, int64, float64) into a stable label.
func directionLabel(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return fmt.Sprintf("%d", v)
	case int32:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%d", int64(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}

type indexCatalog interface {
	ListIndexes(ctx context.Context) ([]CatalogIndex, error)
	CreateIndex(ctx context.Context, spec IndexSpec) error
	DropIndex(ctx context.Context, name string) error
}

// ReconcileResult reports what one pass changed. A converged catalog yields
// an empty result on the next run.
type ReconcileResult struct {
	Created []string
	Dropped []string
}

// Reconciler converges the live index catalog to the desired set at startup.
// Individual create/drop failures are logged and skipped (a missing index
// degrades query speed, not correctness), but an unreachable store retries
// the whole pass and eventually fails startup.
type Reconciler struct {
	catalog indexCatalog
	desired []IndexSpec
	log     *zap.SugaredLogger
	retries int
	backoff time.Duration
}

func NewReconciler(catalog indexCatalog, desired []IndexSpec, log *zap.SugaredLogger, retries int, backoff time.Duration) *Reconciler {
	if retries < 1 {
		retries = 1
	}
	return &Reconciler{
		catalog: catalog,
		desired: desired,
		log:     log,
		retries: retries,
		backoff: backoff,
	}
}

// Run executes the reconciliation pass with bounded retries around the
// catalog read. It returns an error only when the store stayed unreachable
// through every attempt; the caller must treat that as fatal.
func (r *Reconciler) Run(ctx context.Context) (ReconcileResult, error) {
	backoff := r.backoff
	var lastErr error
	for attempt := 1; attempt <= r.retries; attempt++ {
		existing, err := r.catalog.ListIndexes(ctx)
		if err == nil {
			return r.reconcile(ctx, existing), nil
		}
		lastErr = err
		r.log.Warnw("index catalog unreachable", "attempt", attempt, "error", err)
		if attempt == r.retries {
			break
		}
		select {
		case <-ctx.Done():
			return ReconcileResult{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return ReconcileResult{}, fmt.Errorf("reconcile indexes after %d attempts: %w", r.retries, lastErr)
}

func (r *Reconciler) reconcile(ctx context.Context, existing []CatalogIndex) ReconcileResult {
	byName := make(map[string]CatalogIndex, len(existing))
	bySignature := make(map[string]CatalogIndex, len(existing))
	for _, idx := range existing {
		byName[idx.Name] = idx
		bySignature[idx.Signature()] = idx
	}

	var result ReconcileResult
	for _, spec := range r.desired {
		sig := spec.Signature()

		if match, ok := bySignature[sig]; ok && match.Name == spec.Name {
			continue
		}

		blocked := false
		// Same keys under a stale name: the server rejects a second index
		// over the same key pattern, so the old one goes first.
		if match, ok := bySignature[sig]; ok && match.Name != spec.Name {
			if err := r.catalog.DropIndex(ctx, match.Name); err != nil {
				r.log.Warnw("drop stale index failed, skipping", "index", match.Name, "error", err)
				blocked = true
			} else {
				result.Dropped = append(result.Dropped, match.Name)
			}
		}
		// Same name over different keys is the other failure class; it also
		// blocks the create.
		if clash, ok := byName[spec.Name]; ok && clash.Signature() != sig {
			if err := r.catalog.DropIndex(ctx, clash.Name); err != nil {
				r.log.Warnw("drop conflicting index failed, skipping", "index", clash.Name, "error", err)
				blocked = true
			} else {
				result.Dropped = append(result.Dropped, clash.Name)
			}
		}
		if blocked {
			continue
		}

		if err := r.catalog.CreateIndex(ctx, spec); err != nil {
			r.log.Warnw("create index failed, skipping", "index", spec.Name, "error", err)
			continue
		}
		result.Created = append(result.Created, spec.Name)
	}

	if len(result.Created) > 0 || len(result.Dropped) > 0 {
		r.log.Infow("index catalog updated", "created", result.Created, "dropped", result.Dropped)
	}
	return result
}

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// memCatalog mimics the server's index catalog, including the catalog form a
// text index comes back in (_fts/_ftsx plus weights).
type memCatalog struct {
	indexes   []CatalogIndex
	listErrs  []error
	listCalls int
	createErr map[string]error
	dropErr   map[string]error
	creates   int
	drops     int
}

func (c *memCatalog) ListIndexes(context.Context) ([]CatalogIndex, error) {
	c.listCalls++
	if len(c.listErrs) > 0 {
		err := c.listErrs[0]
		c.listErrs = c.listErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	out := make([]CatalogIndex, len(c.indexes))
	copy(out, c.indexes)
	return out, nil
}

func (c *memCatalog) CreateIndex(_ context.Context, spec IndexSpec) error {
	if err := c.createErr[spec.Name]; err != nil {
		return err
	}
	c.creates++
	c.indexes = append(c.indexes, catalogForm(spec))
	return nil
}

func (c *memCatalog) DropIndex(_ context.Context, name string) error {
	if err := c.dropErr[name]; err != nil {
		return err
	}
	c.drops++
	kept := c.indexes[:0]
	for _, idx := range c.indexes {
		if idx.Name != name {
			kept = append(kept, idx)
		}
	}
	c.indexes = kept
	return nil
}

// catalogForm converts a declared spec into the shape ListIndexes reports.
func catalogForm(spec IndexSpec) CatalogIndex {
	idx := CatalogIndex{Name: spec.Name, Unique: spec.Unique}
	var weights bson.D
	for _, elem := range spec.Keys {
		if elem.Value == "text" {
			weights = append(weights, bson.E{Key: elem.Key, Value: int32(1)})
			continue
		}
		idx.Key = append(idx.Key, elem)
	}
	if len(weights) > 0 {
		idx.Key = append(idx.Key, bson.E{Key: "_fts", Value: "text"}, bson.E{Key: "_ftsx", Value: int32(1)})
		idx.Weights = weights
	}
	return idx
}

func newTestReconciler(catalog indexCatalog) *Reconciler {
	return NewReconciler(catalog, DesiredIndexes(), zap.NewNop().Sugar(), 3, time.Millisecond)
}

func TestIndexSignatureIgnoresKeyOrder(t *testing.T) {
	spec := IndexSpec{Keys: bson.D{{Key: "category", Value: 1}, {Key: "topic", Value: 1}, {Key: "title", Value: 1}}}
	reordered := CatalogIndex{Key: bson.D{{Key: "title", Value: int32(1)}, {Key: "category", Value: int32(1)}, {Key: "topic", Value: int32(1)}}}
	if spec.Signature() != reordered.Signature() {
		t.Fatalf("expected reordered keys to normalize equal: %q vs %q", spec.Signature(), reordered.Signature())
	}
}

func TestIndexSignatureNormalizesTextCatalogForm(t *testing.T) {
	spec := IndexSpec{Keys: bson.D{{Key: "title", Value: "text"}, {Key: "description", Value: "text"}}}
	catalog := CatalogIndex{
		Key:     bson.D{{Key: "_fts", Value: "text"}, {Key: "_ftsx", Value: int32(1)}},
		Weights: bson.D{{Key: "description", Value: int32(1)}, {Key: "title", Value: int32(1)}},
	}
	if spec.Signature() != catalog.Signature() {
		t.Fatalf("expected text catalog form to normalize equal: %q vs %q", spec.Signature(), catalog.Signature())
	}

	narrower := CatalogIndex{
		Key:     bson.D{{Key: "_fts", Value: "text"}, {Key: "_ftsx", Value: int32(1)}},
		Weights: bson.D{{Key: "title", Value: int32(1)}},
	}
	if spec.Signature() == narrower.Signature() {
		t.Fatalf("expected differing weighted fields to produce differing signatures")
	}
}

func TestIndexSignatureFoldsNumericDirectionTypes(t *testing.T) {
	asInt := CatalogIndex{Key: bson.D{{Key: "votes", Value: -1}}}
	asInt32 := CatalogIndex{Key: bson.D{{Key: "votes", Value: int32(-1)}}}
	asFloat := CatalogIndex{Key: bson.D{{Key: "votes", Value: float64(-1)}}}
	if asInt.Signature() != asInt32.Signature() || asInt.Signature() != asFloat.Signature() {
		t.Fatalf("expected numeric direction types to fold together: %q / %q / %q",
			asInt.Signature(), asInt32.Signature(), asFloat.Signature())
	}
}

func TestReconcileCreatesMissingIndexes(t *testing.T) {
	catalog := &memCatalog{}
	result, err := newTestReconciler(catalog).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Created) != len(DesiredIndexes()) {
		t.Fatalf("expected %d creates, got %v", len(DesiredIndexes()), result.Created)
	}
	if len(result.Dropped) != 0 {
		t.Fatalf("expected no drops on an empty catalog, got %v", result.Dropped)
	}
}

func TestReconcileSecondRunIsNoOp(t *testing.T) {
	catalog := &memCatalog{}
	reconciler := newTestReconciler(catalog)
	if _, err := reconciler.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	result, err := reconciler.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if len(result.Created) != 0 || len(result.Dropped) != 0 {
		t.Fatalf("expected converged catalog to be a no-op, got created=%v dropped=%v", result.Created, result.Dropped)
	}
}

func TestReconcileRenamesSameKeyIndex(t *testing.T) {
	// The popularity keys already exist under a historical name.
	catalog := &memCatalog{}
	_ = catalog.CreateIndex(context.Background(), IndexSpec{
		Name: "popularity_idx",
		Keys: bson.D{{Key: "votes", Value: -1}, {Key: "title", Value: 1}},
	})
	catalog.creates = 0

	result, err := newTestReconciler(catalog).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Dropped) != 1 || result.Dropped[0] != "popularity_idx" {
		t.Fatalf("expected popularity_idx to be dropped exactly once, got %v", result.Dropped)
	}

	found := 0
	for _, idx := range catalog.indexes {
		if idx.Signature() == (IndexSpec{Keys: bson.D{{Key: "title", Value: 1}, {Key: "votes", Value: -1}}}).Signature() {
			found++
			if idx.Name != "title_popularity" {
				t.Fatalf("expected surviving index to carry the declared name, got %q", idx.Name)
			}
		}
	}
	if found != 1 {
		t.Fatalf("expected exactly one index over the popularity keys, found %d", found)
	}
}

func TestReconcileDropsNameCollision(t *testing.T) {
	// voter_lookup exists but over the wrong keys.
	catalog := &memCatalog{}
	_ = catalog.CreateIndex(context.Background(), IndexSpec{
		Name: "voter_lookup",
		Keys: bson.D{{Key: "author_id", Value: 1}, {Key: "votes", Value: -1}},
	})
	catalog.creates = 0

	result, err := newTestReconciler(catalog).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	droppedOld := false
	for _, name := range result.Dropped {
		if name == "voter_lookup" {
			droppedOld = true
		}
	}
	if !droppedOld {
		t.Fatalf("expected the conflicting voter_lookup definition to be dropped, got %v", result.Dropped)
	}
	for _, idx := range catalog.indexes {
		if idx.Name == "voter_lookup" {
			want := IndexSpec{Keys: bson.D{{Key: "voters", Value: 1}}}
			if idx.Signature() != want.Signature() {
				t.Fatalf("expected voter_lookup to be recreated over the declared keys, got %v", idx.Key)
			}
			return
		}
	}
	t.Fatalf("voter_lookup missing after reconciliation")
}

func TestReconcileSkipsFailedCreates(t *testing.T) {
	catalog := &memCatalog{createErr: map[string]error{"voter_lookup": errors.New("boom")}}
	result, err := newTestReconciler(catalog).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v; individual create failures must not be fatal", err)
	}
	if len(result.Created) != len(DesiredIndexes())-1 {
		t.Fatalf("expected the remaining indexes to be created, got %v", result.Created)
	}
	for _, name := range result.Created {
		if name == "voter_lookup" {
			t.Fatalf("failed create must not be reported as created")
		}
	}
}

func TestReconcileRetriesUnreachableCatalog(t *testing.T) {
	catalog := &memCatalog{listErrs: []error{fmt.Errorf("no reachable servers"), fmt.Errorf("no reachable servers"), nil}}
	if _, err := newTestReconciler(catalog).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v after transient failures", err)
	}
	if catalog.listCalls != 3 {
		t.Fatalf("expected 3 catalog reads, got %d", catalog.listCalls)
	}
}

func TestReconcileFailsAfterRetryExhaustion(t *testing.T) {
	unreachable := fmt.Errorf("no reachable servers")
	catalog := &memCatalog{listErrs: []error{unreachable, unreachable, unreachable}}
	_, err := newTestReconciler(catalog).Run(context.Background())
	if err == nil {
		t.Fatalf("expected an error once retries are exhausted")
	}
	if !errors.Is(err, unreachable) {
		t.Fatalf("expected the underlying store error to be wrapped, got %v", err)
	}
	if catalog.creates != 0 || catalog.drops != 0 {
		t.Fatalf("no catalog mutation may happen while the store is unreachable")
	}
}

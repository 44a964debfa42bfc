package controlplane

import (
	"context"
	"testing"

	"github.com/rik-org/riklet/internal/model"
)

func testDef(name string) model.WorkloadDefinition {
	return model.WorkloadDefinition{
		APIVersion: model.APIVersion,
		Kind:       model.KindPods,
		Name:       name,
		Spec: model.WorkloadSpecBody{
			Containers: []model.ContainerSpec{{Name: "main", Image: "busybox"}},
		},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreCreateThenGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, "default", testDef("fn-a"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Name != "fn-a" || rec.Namespace != "default" {
		t.Errorf("rec = %+v, want name=fn-a namespace=default", rec)
	}

	got, err := s.Get(ctx, "default", "fn-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Definition != rec.Definition {
		t.Errorf("Definition mismatch: got %q want %q", got.Definition, rec.Definition)
	}
}

func TestStoreCreateDuplicateNameConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, "default", testDef("fn-a")); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	_, err := s.Create(ctx, "default", testDef("fn-a"))
	if err != ErrConflict {
		t.Fatalf("second Create error = %v, want ErrConflict", err)
	}
}

func TestStoreCreateSameNameDifferentNamespaceSucceeds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, "default", testDef("fn-a")); err != nil {
		t.Fatalf("Create default: %v", err)
	}
	if _, err := s.Create(ctx, "staging", testDef("fn-a")); err != nil {
		t.Fatalf("Create staging: %v", err)
	}
}

func TestStoreGetMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "default", "nope")
	if err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStoreListOrdersByCreatedAtDescending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, "default", testDef("fn-a")); err != nil {
		t.Fatalf("Create fn-a: %v", err)
	}
	if _, err := s.Create(ctx, "default", testDef("fn-b")); err != nil {
		t.Fatalf("Create fn-b: %v", err)
	}

	records, err := s.List(ctx, "default")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].Name != "fn-b" || records[1].Name != "fn-a" {
		t.Errorf("order = [%s %s], want [fn-b fn-a] (newest first)", records[0].Name, records[1].Name)
	}
}

func TestStoreListEmptyNamespaceReturnsNoRows(t *testing.T) {
	s := newTestStore(t)
	records, err := s.List(context.Background(), "empty")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0", len(records))
	}
}

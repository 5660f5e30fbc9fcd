package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"moneta/internal/core"
	"moneta/internal/storage"
)

func newTestStore(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	store, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedTransaction(t *testing.T, store *storage.SQLiteRepository, category string, tags ...string) int64 {
	t.Helper()
	id, err := store.CreateTransaction(context.Background(), core.Transaction{
		Date:        core.NewDate(2025, 3, 1),
		Description: "seed",
		Amount:      core.Money{Cents: 1000},
		Kind:        core.Expense,
		Category:    category,
		Tags:        tags,
	})
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return id
}

func TestAddCategoryNormalizesAndValidates(t *testing.T) {
	svc := NewTaxonomyService(newTestStore(t))
	ctx := context.Background()

	name, err := svc.AddCategory(ctx, "  Subscriptions ")
	if err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	if name != "subscriptions" {
		t.Fatalf("name = %q, want normalized subscriptions", name)
	}

	if _, err := svc.AddCategory(ctx, "subscriptions"); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate = %v, want ErrConflict", err)
	}
	if _, err := svc.AddCategory(ctx, ""); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("empty = %v, want ErrValidation", err)
	}
	if _, err := svc.AddCategory(ctx, "No_Underscores"); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("bad charset = %v, want ErrValidation", err)
	}
}

func TestRenameCategoryOutcomes(t *testing.T) {
	store := newTestStore(t)
	svc := NewTaxonomyService(store)
	ctx := context.Background()

	seedTransaction(t, store, "fod")

	outcome, err := svc.RenameCategory(ctx, "fod", "meals")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if outcome != Renamed {
		t.Fatalf("outcome = %q, want renamed", outcome)
	}

	// Renaming onto an existing name is a decision point, not an error.
	outcome, err = svc.RenameCategory(ctx, "meals", "food")
	if err != nil {
		t.Fatalf("rename onto existing: %v", err)
	}
	if outcome != ConflictRequiresMerge {
		t.Fatalf("outcome = %q, want conflict_requires_merge", outcome)
	}

	// Same-name rename is a no-op success, but only for a known label.
	outcome, err = svc.RenameCategory(ctx, "Meals", "meals")
	if err != nil || outcome != Renamed {
		t.Fatalf("same-name rename = %q, %v", outcome, err)
	}
	if _, err := svc.RenameCategory(ctx, "ghost", "ghost"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("same-name rename of unknown = %v, want ErrNotFound", err)
	}

	if _, err := svc.RenameCategory(ctx, "meals", "Bad_Name"); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("invalid new name = %v, want ErrValidation", err)
	}
}

func TestRenameTagOutcomes(t *testing.T) {
	store := newTestStore(t)
	svc := NewTaxonomyService(store)
	ctx := context.Background()

	seedTransaction(t, store, "", "resto")
	seedTransaction(t, store, "", "eating-out")

	outcome, err := svc.RenameTag(ctx, "resto", "eating-out")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if outcome != ConflictRequiresMerge {
		t.Fatalf("outcome = %q, want conflict_requires_merge", outcome)
	}

	outcome, err = svc.RenameTag(ctx, "resto", "restaurant")
	if err != nil || outcome != Renamed {
		t.Fatalf("rename = %q, %v", outcome, err)
	}
	tags, _ := svc.ListTags(ctx)
	if len(tags) != 2 || tags[0] != "eating-out" || tags[1] != "restaurant" {
		t.Fatalf("tags = %v", tags)
	}
}

func TestMergeValidation(t *testing.T) {
	store := newTestStore(t)
	svc := NewTaxonomyService(store)
	ctx := context.Background()

	seedTransaction(t, store, "food", "resto")

	if err := svc.MergeCategories(ctx, "food", "Food"); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("self merge = %v, want ErrValidation", err)
	}
	if err := svc.MergeTags(ctx, "resto", ""); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("empty target = %v, want ErrValidation", err)
	}
	if err := svc.MergeCategories(ctx, "food", "ghost"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unknown target = %v, want ErrNotFound", err)
	}
}

func TestMergeCascades(t *testing.T) {
	store := newTestStore(t)
	svc := NewTaxonomyService(store)
	ctx := context.Background()

	id := seedTransaction(t, store, "fod", "resto")
	seedTransaction(t, store, "food", "eating-out")

	if err := svc.MergeCategories(ctx, "fod", "food"); err != nil {
		t.Fatalf("MergeCategories: %v", err)
	}
	if err := svc.MergeTags(ctx, "resto", "eating-out"); err != nil {
		t.Fatalf("MergeTags: %v", err)
	}

	got, err := store.GetTransaction(ctx, id)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.Category != "food" {
		t.Fatalf("category = %q, want food", got.Category)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "eating-out" {
		t.Fatalf("tags = %v, want [eating-out]", got.Tags)
	}
}

func TestDeleteLabels(t *testing.T) {
	store := newTestStore(t)
	svc := NewTaxonomyService(store)
	ctx := context.Background()

	id := seedTransaction(t, store, "food", "resto")

	if err := svc.DeleteCategory(ctx, "food"); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	if err := svc.DeleteTag(ctx, "resto"); err != nil {
		t.Fatalf("DeleteTag: %v", err)
	}

	got, _ := store.GetTransaction(ctx, id)
	if got.Category != "" || len(got.Tags) != 0 {
		t.Fatalf("transaction still labelled: %+v", got)
	}

	// Deleting an unknown label is a strict not-found, never a no-op.
	if err := svc.DeleteCategory(ctx, "food"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("delete unknown category = %v, want ErrNotFound", err)
	}
	if err := svc.DeleteTag(ctx, "resto"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("delete unknown tag = %v, want ErrNotFound", err)
	}
	if err := svc.DeleteCategory(ctx, "Ünicode"); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("invalid name = %v, want ErrValidation", err)
	}
}

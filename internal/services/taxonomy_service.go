// Package services holds the business logic sitting between the HTTP
// layer and the SQLite store: the label taxonomy, the transaction ledger,
// the aggregation views and the CSV importer.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"moneta/internal/core"
	"moneta/internal/storage"
)

// RenameOutcome is the tagged result of a rename. A rename whose target
// already exists is not an error: the caller confirms and re-invokes as
// an explicit merge.
type RenameOutcome string

const (
	Renamed               RenameOutcome = "renamed"
	ConflictRequiresMerge RenameOutcome = "conflict_requires_merge"
)

// TaxonomyService owns the category registry and the tag set, and the
// cascading rename/merge/delete operations over them. Every cascade is a
// single storage transaction.
//
// Deleting an unknown label is a strict ErrNotFound rather than a no-op,
// so a mistyped name in an API call is surfaced instead of swallowed.
type TaxonomyService struct {
	store *storage.SQLiteRepository
}

func NewTaxonomyService(store *storage.SQLiteRepository) *TaxonomyService {
	return &TaxonomyService{store: store}
}

// AddCategory validates and registers a category so it shows up in
// selection lists before any transaction uses it. Returns the normalized
// name.
func (s *TaxonomyService) AddCategory(ctx context.Context, name string) (string, error) {
	n := core.NormalizeLabel(name)
	if err := core.ValidateLabelName(n); err != nil {
		return "", err
	}
	if err := s.store.AddCategory(ctx, n); err != nil {
		return "", err
	}
	return n, nil
}

// RenameCategory renames a category, cascading to every referencing
// transaction. Renaming to the same name is a no-op success; renaming
// onto an existing category reports ConflictRequiresMerge.
func (s *TaxonomyService) RenameCategory(ctx context.Context, oldName, newName string) (RenameOutcome, error) {
	return s.rename(ctx, oldName, newName,
		s.store.CategoryExists, s.store.RenameCategory)
}

// RenameTag behaves like RenameCategory in the tag namespace.
func (s *TaxonomyService) RenameTag(ctx context.Context, oldName, newName string) (RenameOutcome, error) {
	return s.rename(ctx, oldName, newName,
		s.store.TagExists, s.store.RenameTag)
}

func (s *TaxonomyService) rename(
	ctx context.Context,
	oldName, newName string,
	exists func(context.Context, string) (bool, error),
	apply func(context.Context, string, string) error,
) (RenameOutcome, error) {
	oldN := core.NormalizeLabel(oldName)
	newN := core.NormalizeLabel(newName)
	if err := core.ValidateLabelName(newN); err != nil {
		return "", err
	}
	if oldN == newN {
		// Nothing to do, but the source must still exist.
		ok, err := exists(ctx, oldN)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("label %q: %w", oldN, core.ErrNotFound)
		}
		return Renamed, nil
	}

	taken, err := exists(ctx, newN)
	if err != nil {
		return "", err
	}
	if taken {
		slog.InfoContext(ctx, "Rename target exists, merge confirmation required",
			"from", oldN, "to", newN)
		return ConflictRequiresMerge, nil
	}

	if err := apply(ctx, oldN, newN); err != nil {
		// A concurrent create can win the race between the existence
		// check and the update; report it as the same decision point.
		if errors.Is(err, core.ErrConflict) {
			return ConflictRequiresMerge, nil
		}
		return "", err
	}
	return Renamed, nil
}

// MergeCategories moves every transaction from source onto target and
// drops source from the registry.
func (s *TaxonomyService) MergeCategories(ctx context.Context, source, target string) error {
	src, dst, err := normalizeMergePair(source, target)
	if err != nil {
		return err
	}
	return s.store.MergeCategories(ctx, src, dst)
}

// MergeTags adds target to every transaction tagged source (where absent)
// and removes source.
func (s *TaxonomyService) MergeTags(ctx context.Context, source, target string) error {
	src, dst, err := normalizeMergePair(source, target)
	if err != nil {
		return err
	}
	return s.store.MergeTags(ctx, src, dst)
}

func normalizeMergePair(source, target string) (string, string, error) {
	src := core.NormalizeLabel(source)
	dst := core.NormalizeLabel(target)
	if err := core.ValidateLabelName(src); err != nil {
		return "", "", err
	}
	if err := core.ValidateLabelName(dst); err != nil {
		return "", "", err
	}
	if src == dst {
		return "", "", fmt.Errorf("%w: cannot merge a label into itself", core.ErrValidation)
	}
	return src, dst, nil
}

// DeleteCategory removes the category from the registry and from every
// referencing transaction. Unknown names are ErrNotFound.
func (s *TaxonomyService) DeleteCategory(ctx context.Context, name string) error {
	n := core.NormalizeLabel(name)
	if err := core.ValidateLabelName(n); err != nil {
		return err
	}
	return s.store.DeleteCategory(ctx, n)
}

// DeleteTag removes the tag from every referencing transaction. Unknown
// names are ErrNotFound.
func (s *TaxonomyService) DeleteTag(ctx context.Context, name string) error {
	n := core.NormalizeLabel(name)
	if err := core.ValidateLabelName(n); err != nil {
		return err
	}
	return s.store.DeleteTag(ctx, n)
}

// ListCategories returns every known category in alphabetical order.
func (s *TaxonomyService) ListCategories(ctx context.Context) ([]string, error) {
	return s.store.ListCategories(ctx)
}

// ListTags returns every tag in use, in alphabetical order.
func (s *TaxonomyService) ListTags(ctx context.Context) ([]string, error) {
	return s.store.ListTags(ctx)
}

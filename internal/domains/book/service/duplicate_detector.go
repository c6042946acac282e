package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"bookcatalog-backend/internal/domains/book/model"
	"bookcatalog-backend/internal/domains/book/repository"
)

// DuplicateDetector splits identifiers into already-catalogued and new
type DuplicateDetector struct {
	repo repository.DuplicateRepository
}

func NewDuplicateDetector(repo repository.DuplicateRepository) *DuplicateDetector {
	return &DuplicateDetector{repo: repo}
}

// Detect issues one store query covering both ISBN columns and the 10/13
// counterpart of every input. An occurrence is a duplicate when the store
// already has it or when it repeats an earlier occurrence in the input.
// On query failure no identifier is reported as new.
func (d *DuplicateDetector) Detect(ctx context.Context, isbns []string) (*model.DuplicateSplit, error) {
	split := &model.DuplicateSplit{
		Duplicates: []string{},
		New:        []string{},
	}
	if len(isbns) == 0 {
		return split, nil
	}

	lookup := make([]string, 0, len(isbns)*2)
	queued := make(map[string]bool, len(isbns)*2)
	for _, isbn := range isbns {
		for _, v := range model.ISBNVariants(isbn) {
			if !queued[v] {
				queued[v] = true
				lookup = append(lookup, v)
			}
		}
	}

	existing, err := d.repo.FindExistingISBNs(ctx, lookup)
	if err != nil {
		log.Error().Err(err).Int("count", len(isbns)).Msg("Duplicate check failed")
		return split, fmt.Errorf("%w: %v", model.ErrDuplicateCheckFailed, err)
	}

	stored := make(map[string]bool, len(existing))
	for _, isbn := range existing {
		stored[isbn] = true
	}

	seen := make(map[string]bool, len(isbns))
	for _, isbn := range isbns {
		variants := model.ISBNVariants(isbn)

		dup := false
		for _, v := range variants {
			if stored[v] || seen[v] {
				dup = true
				break
			}
		}
		for _, v := range variants {
			seen[v] = true
		}

		if dup {
			split.Duplicates = append(split.Duplicates, isbn)
		} else {
			split.New = append(split.New, isbn)
		}
	}

	return split, nil
}

package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"bookcatalog-backend/internal/domains/book/model"
	"bookcatalog-backend/internal/domains/book/repository"
)

// EntityResolver maps names to ids, creating the missing ones, in bulk
type EntityResolver struct {
	repo repository.EntityRepository
}

func NewEntityResolver(repo repository.EntityRepository) *EntityResolver {
	return &EntityResolver{repo: repo}
}

// Resolve returns an id for every distinct non-blank name.
//
//  1. select existing rows by exact name
//  2. insert the rest in one statement, skipping conflicts
//  3. re-read names a concurrent writer inserted between 1 and 2
func (r *EntityResolver) Resolve(ctx context.Context, kind model.EntityKind, names []string) (*model.Resolution, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %w: %q", model.ErrEntityResolution, model.ErrInvalidEntityKind, kind)
	}

	res := model.NewResolution(kind)
	names = model.UniqueNames(names)
	if len(names) == 0 {
		return res, nil
	}

	// Step 1: existing
	found, err := r.repo.FindByNames(ctx, kind, names)
	if err != nil {
		return nil, fmt.Errorf("%w: find %s: %v", model.ErrEntityResolution, kind, err)
	}
	for _, e := range found {
		res.IDs[e.Name] = e.ID
	}

	missing := missingNames(names, res)
	if len(missing) == 0 {
		return res, nil
	}

	// Step 2: bulk insert
	inserted, err := r.repo.InsertNames(ctx, kind, missing)
	if err != nil {
		return nil, fmt.Errorf("%w: insert %s: %v", model.ErrEntityResolution, kind, err)
	}
	created := make(map[string]bool, len(inserted))
	for _, e := range inserted {
		res.IDs[e.Name] = e.ID
		created[e.Name] = true
	}
	for _, name := range missing {
		if created[name] {
			res.Created = append(res.Created, name)
		}
	}

	// Step 3: lost races
	raced := missingNames(names, res)
	if len(raced) == 0 {
		return res, nil
	}

	log.Debug().Str("kind", kind.String()).Int("count", len(raced)).Msg("Re-reading entities inserted concurrently")

	reread, err := r.repo.FindByNames(ctx, kind, raced)
	if err != nil {
		return nil, fmt.Errorf("%w: re-read %s: %v", model.ErrEntityResolution, kind, err)
	}
	for _, e := range reread {
		res.IDs[e.Name] = e.ID
	}

	if unresolved := missingNames(names, res); len(unresolved) > 0 {
		return nil, fmt.Errorf("%w: %s not resolved: %s", model.ErrEntityResolution, kind, strings.Join(unresolved, ", "))
	}

	return res, nil
}

func missingNames(names []string, res *model.Resolution) []string {
	var missing []string
	for _, name := range names {
		if _, ok := res.IDs[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

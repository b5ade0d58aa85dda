package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"gofinances/internal/cache"
	"gofinances/internal/core"
)

// CategoryResolver maps category titles to persisted categories, creating the
// missing ones. Creation is idempotent per title even under concurrent calls
// from several goroutines or processes sharing one store.
type CategoryResolver struct {
	store       CategoryStore
	cache       cache.Cache[core.Category]
	group       singleflight.Group
	parallelism int
	newID       func() string
	now         func() time.Time
}

func NewCategoryResolver(store CategoryStore, opts ...Option) *CategoryResolver {
	o := buildOptions(opts)
	return &CategoryResolver{
		store:       store,
		cache:       o.cache,
		parallelism: o.parallelism,
		newID:       o.newID,
		now:         o.now,
	}
}

// ResolveOrCreate returns one category per distinct non-empty title. Titles
// are trimmed and compared case-sensitively. The store is queried once for
// the titles not already cached, and the remaining ones are created with
// bounded parallelism.
func (r *CategoryResolver) ResolveOrCreate(ctx context.Context, titles []string) (map[string]core.Category, error) {
	resolved := make(map[string]core.Category, len(titles))
	wanted := distinctTitles(titles)
	if len(wanted) == 0 {
		return resolved, nil
	}

	lookup := make([]string, 0, len(wanted))
	for _, title := range wanted {
		if c, ok := r.cached(title); ok {
			resolved[title] = c
			continue
		}
		lookup = append(lookup, title)
	}
	if len(lookup) == 0 {
		return resolved, nil
	}

	found, err := r.store.FindCategoriesByTitles(ctx, lookup)
	if err != nil {
		return nil, core.NewStoreError("find categories", err)
	}
	for _, c := range found {
		resolved[c.Title] = c
		r.remember(c)
	}

	var missing []string
	for _, title := range lookup {
		if _, ok := resolved[title]; !ok {
			missing = append(missing, title)
		}
	}
	if len(missing) == 0 {
		return resolved, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for _, title := range missing {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := r.create(gctx, title)
			if err != nil {
				return err
			}
			mu.Lock()
			resolved[title] = c
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "Categories resolved",
		"requested", len(wanted),
		"created", len(missing))

	return resolved, nil
}

// create persists a new category. Concurrent callers for the same title in
// this process share a single store write; a unique violation from another
// writer is resolved by reading the winner back.
//
// The shared write runs detached from the caller's cancellation: other
// callers waiting on it must not fail because the first caller's batch did.
func (r *CategoryResolver) create(ctx context.Context, title string) (core.Category, error) {
	v, err, _ := r.group.Do(title, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		now := r.now()
		saved, err := r.store.SaveCategory(ctx, core.Category{
			ID:        r.newID(),
			Title:     title,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err == nil {
			r.remember(saved)
			return saved, nil
		}
		if !errors.Is(err, core.ErrUniqueViolation) {
			return nil, core.NewStoreError("save category", err)
		}

		existing, err := r.store.FindCategoriesByTitles(ctx, []string{title})
		if err != nil {
			return nil, core.NewStoreError("find category", err)
		}
		for _, c := range existing {
			if c.Title == title {
				r.remember(c)
				return c, nil
			}
		}
		return nil, core.NewStoreError("find category",
			fmt.Errorf("category %q reported as duplicate but not found", title))
	})
	if err != nil {
		return core.Category{}, err
	}
	return v.(core.Category), nil
}

func (r *CategoryResolver) cached(title string) (core.Category, bool) {
	if r.cache == nil {
		return core.Category{}, false
	}
	return r.cache.Get(title)
}

func (r *CategoryResolver) remember(c core.Category) {
	if r.cache != nil {
		r.cache.Set(c.Title, c)
	}
}

func distinctTitles(titles []string) []string {
	seen := make(map[string]struct{}, len(titles))
	out := make([]string, 0, len(titles))
	for _, t := range titles {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

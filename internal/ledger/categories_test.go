package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofinances/internal/cache"
	"gofinances/internal/core"
	"gofinances/internal/ledger"
)

func TestResolveOrCreateDeduplicates(t *testing.T) {
	store := newFlakyStore()
	r := ledger.NewCategoryResolver(store, ledger.WithIDGenerator(sequentialIDs()), ledger.WithClock(fixedClock))

	got, err := r.ResolveOrCreate(context.Background(), []string{"Food", "Food", "Rent"})
	require.NoError(t, err)

	assert.Len(t, got, 2)
	assert.Equal(t, "Food", got["Food"].Title)
	assert.Equal(t, "Rent", got["Rent"].Title)
	assert.NotEqual(t, got["Food"].ID, got["Rent"].ID)
	assert.True(t, got["Food"].CreatedAt.Equal(fixedNow))
	assert.Equal(t, 2, store.CategoryCount())
}

func TestResolveOrCreateReusesExisting(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	r := ledger.NewCategoryResolver(store)

	first, err := r.ResolveOrCreate(ctx, []string{"Food"})
	require.NoError(t, err)
	second, err := r.ResolveOrCreate(ctx, []string{"Food", "Rent"})
	require.NoError(t, err)

	assert.Equal(t, first["Food"].ID, second["Food"].ID)
	assert.Equal(t, 2, store.CategoryCount())
	assert.Equal(t, 2, store.saveCatCalls)
}

func TestResolveOrCreateTrimsAndSkipsBlank(t *testing.T) {
	store := newFlakyStore()
	r := ledger.NewCategoryResolver(store)

	got, err := r.ResolveOrCreate(context.Background(), []string{" Food ", "", "   ", "Food"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "Food")

	empty, err := r.ResolveOrCreate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestResolveOrCreateIsCaseSensitive(t *testing.T) {
	store := newFlakyStore()
	r := ledger.NewCategoryResolver(store)

	got, err := r.ResolveOrCreate(context.Background(), []string{"food", "Food"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestResolveOrCreateConcurrentCallers(t *testing.T) {
	store := newFlakyStore()
	r := ledger.NewCategoryResolver(store, ledger.WithParallelism(3))
	titles := []string{"Food", "Rent", "Travel", "Salary", "Gifts"}

	var wg sync.WaitGroup
	results := make([]map[string]core.Category, 16)
	errs := make([]error, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = r.ResolveOrCreate(context.Background(), titles)
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Len(t, results[i], len(titles))
		for _, title := range titles {
			assert.Equal(t, results[0][title].ID, results[i][title].ID)
		}
	}
	assert.Equal(t, len(titles), store.CategoryCount())
}

func TestResolveOrCreateSeparateResolversShareStore(t *testing.T) {
	store := newFlakyStore()
	titles := []string{"Food", "Rent"}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// separate resolvers do not share singleflight state, so the
			// store's unique constraint settles the race
			r := ledger.NewCategoryResolver(store)
			_, err := r.ResolveOrCreate(context.Background(), titles)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, store.CategoryCount())
}

func TestResolveOrCreateRecoversFromUniqueViolation(t *testing.T) {
	store := newFlakyStore()
	store.uniqueOnce["Food"] = true
	r := ledger.NewCategoryResolver(store)

	got, err := r.ResolveOrCreate(context.Background(), []string{"Food"})
	require.NoError(t, err)
	assert.Equal(t, "rival-Food", got["Food"].ID)
	assert.Equal(t, 1, store.CategoryCount())
}

func TestResolveOrCreateStoreFailure(t *testing.T) {
	store := newFlakyStore()
	store.failSaveCat = errBroken
	r := ledger.NewCategoryResolver(store)

	_, err := r.ResolveOrCreate(context.Background(), []string{"Food", "Rent"})
	require.Error(t, err)

	var se *core.StoreError
	assert.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, errBroken)
	assert.False(t, core.IsRejection(err))
}

// stallingStore fails failTitle once every other title has started its
// write, then holds those writes for hold unless their context ends.
type stallingStore struct {
	*flakyStore
	failTitle string
	hold      time.Duration
	entered   chan struct{}
	once      sync.Once
}

func (s *stallingStore) SaveCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if c.Title == s.failTitle {
		<-s.entered
		return core.Category{}, errBroken
	}
	s.once.Do(func() { close(s.entered) })
	select {
	case <-ctx.Done():
		return core.Category{}, ctx.Err()
	case <-time.After(s.hold):
	}
	return s.flakyStore.SaveCategory(ctx, c)
}

func TestResolveOrCreateSharedWriteOutlivesFailedBatch(t *testing.T) {
	store := &stallingStore{
		flakyStore: newFlakyStore(),
		failTitle:  "Rent",
		hold:       50 * time.Millisecond,
		entered:    make(chan struct{}),
	}
	r := ledger.NewCategoryResolver(store, ledger.WithParallelism(2))

	_, err := r.ResolveOrCreate(context.Background(), []string{"Food", "Rent"})
	require.ErrorIs(t, err, errBroken)

	// the write for Food was shared and is not cut short by Rent failing
	assert.Equal(t, 1, store.CategoryCount())
	got, err := r.ResolveOrCreate(context.Background(), []string{"Food"})
	require.NoError(t, err)
	assert.Equal(t, "Food", got["Food"].Title)
}

func TestResolveOrCreateUsesCache(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	lru := cache.NewLRU[core.Category](16, 0)
	r := ledger.NewCategoryResolver(store, ledger.WithCategoryCache(lru))

	first, err := r.ResolveOrCreate(ctx, []string{"Food", "Rent"})
	require.NoError(t, err)
	assert.Equal(t, 2, lru.Size())

	cached, ok := lru.Get("Food")
	require.True(t, ok)
	assert.Equal(t, first["Food"].ID, cached.ID)

	// a second resolver with the same cache never writes again
	other := ledger.NewCategoryResolver(store, ledger.WithCategoryCache(lru))
	second, err := other.ResolveOrCreate(ctx, []string{"Rent"})
	require.NoError(t, err)
	assert.Equal(t, first["Rent"].ID, second["Rent"].ID)
	assert.Equal(t, 2, store.saveCatCalls)
}

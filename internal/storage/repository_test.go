package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofinances/internal/core"
	"gofinances/internal/ledger"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) (*SQLiteRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "ledger.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo, path
}

func category(id, title string) core.Category {
	return core.Category{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}
}

func txn(id string, typ core.TransactionType, value, categoryID string) core.Transaction {
	return core.Transaction{
		ID:         id,
		Title:      "t-" + id,
		Value:      decimal.RequireFromString(value),
		Type:       typ,
		CategoryID: categoryID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestMigrationsApplied(t *testing.T) {
	_, path := newTestRepo(t)

	version, dirty, err := SchemaVersion(DSN(path))
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)

	// reopening is a no-op migration
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())
}

func TestCategoryRoundTripAndUniqueness(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	_, err := repo.SaveCategory(ctx, category("c1", "Food"))
	require.NoError(t, err)

	_, err = repo.SaveCategory(ctx, category("c2", "Food"))
	assert.ErrorIs(t, err, core.ErrUniqueViolation)

	_, err = repo.SaveCategory(ctx, category("c3", "food"))
	require.NoError(t, err, "titles are case-sensitive")

	found, err := repo.FindCategoriesByTitles(ctx, []string{"Food", "Rent"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "c1", found[0].ID)
	assert.True(t, found[0].CreatedAt.Equal(now))
}

func TestSaveCategoryDuplicateIDIsNotUniqueViolation(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	_, err := repo.SaveCategory(ctx, category("c1", "Food"))
	require.NoError(t, err)
	_, err = repo.SaveCategory(ctx, category("c1", "Rent"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrUniqueViolation)
}

func TestTransactionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	_, err := repo.SaveCategory(ctx, category("c1", "Salary"))
	require.NoError(t, err)
	_, err = repo.SaveCategory(ctx, category("c2", "Food"))
	require.NoError(t, err)

	saved, err := repo.SaveTransactions(ctx, []core.Transaction{
		txn("t1", core.Income, "100.10", "c1"),
		txn("t2", core.Outcome, "0.10", "c2"),
	})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "Food", saved[1].Category.Title)

	all, err := repo.FindTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "t1", all[0].ID)
	assert.Equal(t, "Salary", all[0].Category.Title)
	assert.True(t, core.ComputeBalance(all).Total.Equal(decimal.NewFromInt(100)))

	outcomes, err := repo.FindTransactions(ctx, ledger.TransactionFilter{Type: core.Outcome})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "t2", outcomes[0].ID)

	got, err := repo.FindTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, got.Value.Equal(decimal.RequireFromString("100.1")))
	assert.True(t, got.CreatedAt.Equal(now))

	_, err = repo.FindTransaction(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSaveTransactionsRefusesUncoveredOutcome(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	_, err := repo.SaveCategory(ctx, category("c1", "Misc"))
	require.NoError(t, err)

	_, err = repo.SaveTransaction(ctx, txn("t1", core.Income, "50", "c1"))
	require.NoError(t, err)

	_, err = repo.SaveTransactions(ctx, []core.Transaction{
		txn("t2", core.Outcome, "30", "c1"),
		txn("t3", core.Outcome, "30", "c1"),
	})
	assert.ErrorIs(t, err, core.ErrLedgerConflict)

	all, err := repo.FindTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1, "refused batch must not be partially written")
}

func TestSaveTransactionRequiresCategory(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.SaveTransaction(context.Background(), txn("t1", core.Income, "1", "nope"))
	assert.Error(t, err)
}

func TestDeleteTransaction(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	_, err := repo.SaveCategory(ctx, category("c1", "Misc"))
	require.NoError(t, err)
	_, err = repo.SaveTransactions(ctx, []core.Transaction{
		txn("t1", core.Income, "100", "c1"),
		txn("t2", core.Outcome, "60", "c1"),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, repo.DeleteTransaction(ctx, "t1"), core.ErrLedgerConflict)
	require.NoError(t, repo.DeleteTransaction(ctx, "t2"))
	require.NoError(t, repo.DeleteTransaction(ctx, "t1"))
	assert.ErrorIs(t, repo.DeleteTransaction(ctx, "t1"), core.ErrNotFound)
}

func TestFindCategoriesByTitlesChunks(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	titles := make([]string, 0, maxParams+20)
	for i := range maxParams + 20 {
		title := "cat-" + decimal.NewFromInt(int64(i)).String()
		titles = append(titles, title)
		if i%100 == 0 {
			_, err := repo.SaveCategory(ctx, category(title, title))
			require.NoError(t, err)
		}
	}

	found, err := repo.FindCategoriesByTitles(ctx, titles)
	require.NoError(t, err)
	assert.Len(t, found, 6)
}

func TestConcurrentWritersKeepTotalNonNegative(t *testing.T) {
	ctx := context.Background()
	repo, path := newTestRepo(t)
	_, err := repo.SaveCategory(ctx, category("c1", "Misc"))
	require.NoError(t, err)
	_, err = repo.SaveTransaction(ctx, txn("seed", core.Income, "100", "c1"))
	require.NoError(t, err)

	// A second handle on the same file stands in for another process.
	other, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	defer other.Close()

	var wg sync.WaitGroup
	for i, r := range []*SQLiteRepository{repo, other, repo, other} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := "out-" + decimal.NewFromInt(int64(i)).String()
			_, _ = r.SaveTransaction(ctx, txn(id, core.Outcome, "40", "c1"))
		}()
	}
	wg.Wait()

	all, err := repo.FindTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	total := core.ComputeBalance(all).Total
	assert.False(t, total.IsNegative(), "total %s", total)
	assert.Len(t, all, 3, "only two outcomes of 40 fit in 100")
}

func TestPing(t *testing.T) {
	repo, _ := newTestRepo(t)
	assert.NoError(t, repo.Ping(context.Background()))
}

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/offerledger/internal/config"
	"github.com/punchamoorthee/offerledger/internal/domain"
)

// flakyBackend wraps a backend and fails writes while fail is set.
type flakyBackend struct {
	Backend
	mu   sync.Mutex
	fail bool
}

func (f *flakyBackend) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *flakyBackend) Put(ctx context.Context, set string, records map[string][]byte) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.Backend.Put(ctx, set, records)
}

func newFileBackend(t *testing.T) (*FileBackend, string) {
	t.Helper()
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)
	return b, dir
}

func TestLedgerGetCreatesAndPersists(t *testing.T) {
	ctx := context.Background()
	b, dir := newFileBackend(t)

	ledger, err := NewLedgerStore(ctx, b)
	require.NoError(t, err)

	acc, err := ledger.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), acc.UserID)
	assert.Zero(t, acc.Balance)
	assert.False(t, acc.HasReferrer())
	assert.False(t, acc.CreatedAt.IsZero())

	reopened, err := NewFileBackend(dir)
	require.NoError(t, err)
	ledger2, err := NewLedgerStore(ctx, reopened)
	require.NoError(t, err)
	got, ok := ledger2.Lookup(7)
	require.True(t, ok)
	assert.Equal(t, acc.CreatedAt.Unix(), got.CreatedAt.Unix())
}

func TestLedgerUpdateMissingAccount(t *testing.T) {
	ctx := context.Background()
	b, _ := newFileBackend(t)
	ledger, err := NewLedgerStore(ctx, b)
	require.NoError(t, err)

	_, err = ledger.Update(ctx, 99, func(a *domain.Account) error {
		a.Balance = 10
		return nil
	})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestLedgerConcurrentUpdatesAreNotLost(t *testing.T) {
	ctx := context.Background()
	b, _ := newFileBackend(t)
	ledger, err := NewLedgerStore(ctx, b)
	require.NoError(t, err)
	_, err = ledger.Get(ctx, 1)
	require.NoError(t, err)

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := ledger.Update(ctx, 1, func(a *domain.Account) error {
				a.Balance += 10
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	acc, ok := ledger.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, int64(workers*10), acc.Balance)
}

func TestLedgerTxWritesAllOrNothing(t *testing.T) {
	ctx := context.Background()
	fb, _ := newFileBackend(t)
	b := &flakyBackend{Backend: fb}
	ledger, err := NewLedgerStore(ctx, b)
	require.NoError(t, err)
	_, err = ledger.Get(ctx, 1)
	require.NoError(t, err)
	_, err = ledger.Get(ctx, 2)
	require.NoError(t, err)

	b.setFail(true)
	err = ledger.Tx(ctx, []int64{2, 1}, func(tx *LedgerTx) error {
		a, _ := tx.Get(1)
		c, _ := tx.Get(2)
		a.Balance += 100
		c.ReferredBy = 1
		tx.Put(a)
		tx.Put(c)
		return nil
	})
	require.ErrorIs(t, err, ErrPersist)

	a, _ := ledger.Lookup(1)
	c, _ := ledger.Lookup(2)
	assert.Zero(t, a.Balance, "cache must not run ahead of the durable state")
	assert.False(t, c.HasReferrer())

	b.setFail(false)
	err = ledger.Tx(ctx, []int64{1, 2}, func(tx *LedgerTx) error {
		return errors.New("abort")
	})
	assert.EqualError(t, err, "abort")
}

func TestLedgerTxRejectsUnlockedWrites(t *testing.T) {
	ctx := context.Background()
	b, _ := newFileBackend(t)
	ledger, err := NewLedgerStore(ctx, b)
	require.NoError(t, err)

	assert.Panics(t, func() {
		_ = ledger.Tx(ctx, []int64{1}, func(tx *LedgerTx) error {
			tx.Put(domain.Account{UserID: 2})
			return nil
		})
	})
}

func TestCatalogCreateListAndOrder(t *testing.T) {
	ctx := context.Background()
	b, _ := newFileBackend(t)
	catalog, err := NewCatalogStore(ctx, b)
	require.NoError(t, err)

	for _, name := range []string{"Slot2", "Aviator", "Slot1"} {
		require.NoError(t, catalog.Create(ctx, name, domain.Offer{Body: name, Views: 5}))
	}
	assert.Equal(t, []string{"Slot2", "Aviator", "Slot1"}, catalog.List())

	o, ok := catalog.Get("Aviator")
	require.True(t, ok)
	assert.Zero(t, o.Views)
	assert.Equal(t, "Aviator", o.Name)

	err = catalog.Create(ctx, "Aviator", domain.Offer{Body: "other"})
	assert.ErrorIs(t, err, ErrOfferExists)
	o, _ = catalog.Get("Aviator")
	assert.Equal(t, "Aviator", o.Body)

	assert.False(t, catalog.Exists("aviator"), "names are case-sensitive")
}

func TestCatalogConcurrentCreateHasOneWinner(t *testing.T) {
	ctx := context.Background()
	b, _ := newFileBackend(t)
	catalog, err := NewCatalogStore(ctx, b)
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if err := catalog.Create(ctx, "Slot1", domain.Offer{Body: "x"}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrOfferExists)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestCatalogUpdateKeepsViewsAndPosition(t *testing.T) {
	ctx := context.Background()
	b, _ := newFileBackend(t)
	catalog, err := NewCatalogStore(ctx, b)
	require.NoError(t, err)
	require.NoError(t, catalog.Create(ctx, "A", domain.Offer{Body: "a"}))
	require.NoError(t, catalog.Create(ctx, "B", domain.Offer{Body: "b"}))
	_, err = catalog.IncrementView(ctx, "A")
	require.NoError(t, err)

	updated, err := catalog.Update(ctx, "A", func(o *domain.Offer) error {
		o.Body = "new"
		o.Views = 1000
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Body)
	assert.Equal(t, int64(1), updated.Views)
	assert.Equal(t, []string{"A", "B"}, catalog.List())

	_, err = catalog.Update(ctx, "missing", func(o *domain.Offer) error { return nil })
	assert.ErrorIs(t, err, ErrOfferNotFound)
}

func TestCatalogViewsAndStats(t *testing.T) {
	ctx := context.Background()
	b, _ := newFileBackend(t)
	catalog, err := NewCatalogStore(ctx, b)
	require.NoError(t, err)
	require.NoError(t, catalog.Create(ctx, "A", domain.Offer{Body: "a"}))
	require.NoError(t, catalog.Create(ctx, "B", domain.Offer{Body: "b"}))

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "A"
			if i%3 == 0 {
				name = "B"
			}
			_, err := catalog.IncrementView(ctx, name)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stats := catalog.Stats()
	require.Len(t, stats.Offers, 2)
	assert.Equal(t, domain.OfferStat{Name: "A", Views: 20}, stats.Offers[0])
	assert.Equal(t, domain.OfferStat{Name: "B", Views: 10}, stats.Offers[1])
	assert.Equal(t, int64(30), stats.Total)

	_, err = catalog.IncrementView(ctx, "missing")
	assert.ErrorIs(t, err, ErrOfferNotFound)
}

func TestCatalogRemove(t *testing.T) {
	ctx := context.Background()
	b, dir := newFileBackend(t)
	catalog, err := NewCatalogStore(ctx, b)
	require.NoError(t, err)
	require.NoError(t, catalog.Create(ctx, "A", domain.Offer{Body: "a"}))

	require.NoError(t, catalog.Remove(ctx, "A"))
	assert.ErrorIs(t, catalog.Remove(ctx, "A"), ErrOfferNotFound)
	assert.Empty(t, catalog.List())

	reopened, err := NewFileBackend(dir)
	require.NoError(t, err)
	catalog2, err := NewCatalogStore(ctx, reopened)
	require.NoError(t, err)
	assert.Empty(t, catalog2.List())
}

func TestCatalogLoadsLegacyFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	legacy := `{
    "Slot1": {"text": "<b>hi</b>", "photo_id": null, "file_id": "F1", "button_text": "Go", "button_url": "https://x.test", "views": 4},
    "Aviator": {"text": "plane"}
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, SetCatalog+".json"), []byte(legacy), 0o644))

	b, err := NewFileBackend(dir)
	require.NoError(t, err)
	catalog, err := NewCatalogStore(ctx, b)
	require.NoError(t, err)

	assert.Equal(t, []string{"Aviator", "Slot1"}, catalog.List())
	o, ok := catalog.Get("Slot1")
	require.True(t, ok)
	assert.Equal(t, "<b>hi</b>", o.Body)
	assert.Empty(t, o.ImageRef)
	assert.Equal(t, "F1", o.FileRef)
	assert.Equal(t, int64(4), o.Views)
	assert.True(t, o.HasButton())

	a, _ := catalog.Get("Aviator")
	assert.Zero(t, a.Views)
	assert.False(t, a.HasButton())
}

func TestCatalogPersistFailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	fb, _ := newFileBackend(t)
	b := &flakyBackend{Backend: fb}
	catalog, err := NewCatalogStore(ctx, b)
	require.NoError(t, err)
	require.NoError(t, catalog.Create(ctx, "A", domain.Offer{Body: "a"}))

	b.setFail(true)
	_, err = catalog.IncrementView(ctx, "A")
	require.ErrorIs(t, err, ErrPersist)
	o, _ := catalog.Get("A")
	assert.Zero(t, o.Views)

	err = catalog.Create(ctx, "B", domain.Offer{Body: "b"})
	require.ErrorIs(t, err, ErrPersist)
	assert.False(t, catalog.Exists("B"))
}

func TestFileBackendLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	b, dir := newFileBackend(t)
	require.NoError(t, b.Put(ctx, SetLedger, map[string][]byte{"1": []byte(`{"balance":1}`)}))
	require.NoError(t, b.Put(ctx, SetLedger, map[string][]byte{"2": []byte(`{"balance":2}`)}))
	require.NoError(t, b.Delete(ctx, SetLedger, "1"))
	require.NoError(t, b.Delete(ctx, SetLedger, "missing"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, SetLedger+".json", entries[0].Name())

	got, err := b.Load(ctx, SetLedger)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.JSONEq(t, `{"balance":2}`, string(got["2"]))
}

func TestBoltBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "offerledger.db")
	b, err := NewBoltBackend(path, nil, SetCatalog, SetLedger)
	require.NoError(t, err)

	ledger, err := NewLedgerStore(ctx, b)
	require.NoError(t, err)
	_, err = ledger.Get(ctx, 5)
	require.NoError(t, err)
	_, err = ledger.Update(ctx, 5, func(a *domain.Account) error {
		a.Balance = 2500
		return nil
	})
	require.NoError(t, err)

	catalog, err := NewCatalogStore(ctx, b)
	require.NoError(t, err)
	require.NoError(t, catalog.Create(ctx, "Z", domain.Offer{Body: "z"}))
	require.NoError(t, catalog.Create(ctx, "A", domain.Offer{Body: "a"}))
	require.NoError(t, b.Close())

	b2, err := NewBoltBackend(path, nil, SetCatalog, SetLedger)
	require.NoError(t, err)
	defer b2.Close()

	ledger2, err := NewLedgerStore(ctx, b2)
	require.NoError(t, err)
	acc, ok := ledger2.Lookup(5)
	require.True(t, ok)
	assert.Equal(t, int64(2500), acc.Balance)

	catalog2, err := NewCatalogStore(ctx, b2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Z", "A"}, catalog2.List(), "insertion order survives key-sorted storage")
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()

	dir := filepath.Join(t.TempDir(), "nested")
	b, err := OpenBackend(ctx, &config.Config{StoreBackend: config.BackendBolt, DataDir: dir})
	require.NoError(t, err)
	assert.IsType(t, &BoltBackend{}, b)
	require.NoError(t, b.Close())
	assert.FileExists(t, filepath.Join(dir, boltFile))

	b, err = OpenBackend(ctx, &config.Config{StoreBackend: config.BackendFile, DataDir: dir})
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, b)

	_, err = OpenBackend(ctx, &config.Config{StoreBackend: "redis"})
	assert.Error(t, err)
}

func TestPostgresBackendRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_DB_SOURCE")
	if dsn == "" {
		t.Skip("TEST_DB_SOURCE not set")
	}
	ctx := context.Background()
	b, err := NewPostgresBackend(ctx, dsn)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Delete(ctx, "test", "k"))
	require.NoError(t, b.Put(ctx, "test", map[string][]byte{"k": []byte(`{"balance": 3}`)}))
	got, err := b.Load(ctx, "test")
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance": 3}`, string(got["k"]))
	require.NoError(t, b.Delete(ctx, "test", "k"))
}

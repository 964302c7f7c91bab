package store

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/punchamoorthee/offerledger/internal/domain"
)

// LedgerStore maps user identities to accounts.
type LedgerStore struct {
	set *recordSet[domain.Account]
	now func() time.Time
}

func NewLedgerStore(ctx context.Context, backend Backend) (*LedgerStore, error) {
	set, err := loadRecordSet[domain.Account](ctx, backend, SetLedger)
	if err != nil {
		return nil, err
	}
	return &LedgerStore{set: set, now: time.Now}, nil
}

func accountKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Get returns the account for id, creating and persisting a zero-valued one on first contact.
func (s *LedgerStore) Get(ctx context.Context, id int64) (domain.Account, error) {
	if acc, ok := s.set.get(accountKey(id)); ok {
		return acc, nil
	}
	var acc domain.Account
	err := s.Tx(ctx, []int64{id}, func(tx *LedgerTx) error {
		if existing, ok := tx.Get(id); ok {
			acc = existing
			return nil
		}
		acc = domain.Account{UserID: id, CreatedAt: s.now().UTC()}
		tx.Put(acc)
		return nil
	})
	return acc, err
}

// Lookup returns the cached account without creating it.
func (s *LedgerStore) Lookup(id int64) (domain.Account, bool) {
	return s.set.get(accountKey(id))
}

// Update applies fn to the current record and persists the result before returning.
// A missing account yields ErrAccountNotFound; an error from fn aborts without writing.
func (s *LedgerStore) Update(ctx context.Context, id int64, fn func(*domain.Account) error) (domain.Account, error) {
	var out domain.Account
	err := s.Tx(ctx, []int64{id}, func(tx *LedgerTx) error {
		acc, ok := tx.Get(id)
		if !ok {
			return ErrAccountNotFound
		}
		if err := fn(&acc); err != nil {
			return err
		}
		acc.UserID = id
		tx.Put(acc)
		out = acc
		return nil
	})
	if err != nil {
		return domain.Account{}, err
	}
	return out, nil
}

// Tx runs fn with exclusive access to the accounts in ids. Every record fn puts is
// persisted as one atomic batch after fn returns nil; nothing is written otherwise.
func (s *LedgerStore) Tx(ctx context.Context, ids []int64, fn func(tx *LedgerTx) error) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = accountKey(id)
	}
	unlock := s.set.lock(keys...)
	defer unlock()

	tx := &LedgerTx{store: s, allowed: make(map[int64]struct{}, len(ids)), writes: make(map[int64]domain.Account)}
	for _, id := range ids {
		tx.allowed[id] = struct{}{}
	}
	if err := fn(tx); err != nil {
		return err
	}

	writes := make(map[string]domain.Account, len(tx.writes))
	for id, acc := range tx.writes {
		writes[accountKey(id)] = acc
	}
	return s.set.commit(ctx, writes)
}

// Accounts returns a snapshot of every account ordered by user id.
func (s *LedgerStore) Accounts() []domain.Account {
	all := s.set.values()
	out := make([]domain.Account, 0, len(all))
	for _, acc := range all {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// LedgerTx is the view of the ledger inside Tx.
type LedgerTx struct {
	store   *LedgerStore
	allowed map[int64]struct{}
	writes  map[int64]domain.Account
}

// Get returns the record as seen by this transaction, including its own pending writes.
func (tx *LedgerTx) Get(id int64) (domain.Account, bool) {
	if acc, ok := tx.writes[id]; ok {
		return acc, true
	}
	return tx.store.set.get(accountKey(id))
}

// Put stages a whole-record replacement. Only ids locked by Tx may be written.
func (tx *LedgerTx) Put(acc domain.Account) {
	if _, ok := tx.allowed[acc.UserID]; !ok {
		panic("store: ledger write outside transaction key set")
	}
	tx.writes[acc.UserID] = acc
}

// Now is the store clock, exposed so transactions stamp records consistently.
func (tx *LedgerTx) Now() time.Time {
	return tx.store.now().UTC()
}

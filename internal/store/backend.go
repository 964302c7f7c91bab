package store

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Record set names.
const (
	SetCatalog = "catalog"
	SetLedger  = "ledger"
)

var (
	// ErrPersist wraps any failure to write a record to the backend. After it is
	// returned the cache still holds the last durable state; the caller's view
	// of the record may be stale.
	ErrPersist = errors.New("persist failed")

	ErrAccountNotFound = errors.New("account not found")
	ErrOfferNotFound   = errors.New("offer not found")
	ErrOfferExists     = errors.New("offer already exists")
)

var storeWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "offerledger_store_writes_total",
	Help: "Record writes to the durable backend, labeled by record set and outcome",
}, []string{"set", "status"})

// Backend is a flat durable key-value record set. Values are opaque JSON documents.
type Backend interface {
	// Load returns every record of the set. A set that was never written is empty, not an error.
	Load(ctx context.Context, set string) (map[string][]byte, error)
	// Put upserts all records in one atomic write: either every record is durable or none is.
	Put(ctx context.Context, set string, records map[string][]byte) error
	// Delete removes a record. Deleting a missing key is not an error.
	Delete(ctx context.Context, set string, key string) error
	Close() error
}

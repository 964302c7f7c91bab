package store

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
)

const lockStripes = 64

// recordSet is a write-through cache over one backend record set. Read-modify-write
// sequences hold the stripe locks of every key they touch; stripes are always taken
// in ascending order so multi-key transactions cannot deadlock.
type recordSet[T any] struct {
	name    string
	backend Backend

	stripes [lockStripes]sync.Mutex

	mu    sync.RWMutex
	cache map[string]T
}

func loadRecordSet[T any](ctx context.Context, backend Backend, name string) (*recordSet[T], error) {
	raw, err := backend.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	cache := make(map[string]T, len(raw))
	for key, data := range raw {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("unable to decode %s record %q: %w", name, key, err)
		}
		cache[key] = v
	}
	return &recordSet[T]{name: name, backend: backend, cache: cache}, nil
}

func stripeOf(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % lockStripes)
}

// lock acquires the stripes covering keys and returns the matching unlock.
func (r *recordSet[T]) lock(keys ...string) func() {
	seen := make(map[int]struct{}, len(keys))
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		s := stripeOf(k)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		idx = append(idx, s)
	}
	sort.Ints(idx)
	for _, s := range idx {
		r.stripes[s].Lock()
	}
	return func() {
		for i := len(idx) - 1; i >= 0; i-- {
			r.stripes[idx[i]].Unlock()
		}
	}
}

func (r *recordSet[T]) get(key string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.cache[key]
	return v, ok
}

func (r *recordSet[T]) values() map[string]T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]T, len(r.cache))
	for k, v := range r.cache {
		out[k] = v
	}
	return out
}

// commit persists writes as one batch and publishes them to the cache only after the
// backend accepted them. Callers must hold the stripe locks of every key in writes.
func (r *recordSet[T]) commit(ctx context.Context, writes map[string]T) error {
	if len(writes) == 0 {
		return nil
	}
	encoded := make(map[string][]byte, len(writes))
	for k, v := range writes {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("unable to encode %s record %q: %w", r.name, k, err)
		}
		encoded[k] = data
	}
	if err := r.backend.Put(ctx, r.name, encoded); err != nil {
		storeWrites.WithLabelValues(r.name, "error").Inc()
		return fmt.Errorf("%w: %s: %w", ErrPersist, r.name, err)
	}
	storeWrites.WithLabelValues(r.name, "ok").Inc()

	r.mu.Lock()
	for k, v := range writes {
		r.cache[k] = v
	}
	r.mu.Unlock()
	return nil
}

// remove deletes key durably, then from the cache. Callers must hold the key's stripe.
func (r *recordSet[T]) remove(ctx context.Context, key string) error {
	if err := r.backend.Delete(ctx, r.name, key); err != nil {
		storeWrites.WithLabelValues(r.name, "error").Inc()
		return fmt.Errorf("%w: %s: %w", ErrPersist, r.name, err)
	}
	storeWrites.WithLabelValues(r.name, "ok").Inc()

	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()
	return nil
}

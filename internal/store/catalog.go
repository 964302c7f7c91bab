package store

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/offerledger/internal/domain"
)

var offerViews = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "offerledger_offer_views_total",
	Help: "Successful offer views",
}, []string{"offer"})

// CatalogStore maps offer names (case-sensitive) to offers, remembering insertion order.
type CatalogStore struct {
	set *recordSet[domain.Offer]
	seq atomic.Int64
}

func NewCatalogStore(ctx context.Context, backend Backend) (*CatalogStore, error) {
	set, err := loadRecordSet[domain.Offer](ctx, backend, SetCatalog)
	if err != nil {
		return nil, err
	}
	s := &CatalogStore{set: set}

	// Records written without a sequence keep name order behind the sequenced ones.
	var last int64
	var legacy []string
	for name, o := range set.cache {
		o.Name = name
		set.cache[name] = o
		if o.Seq > last {
			last = o.Seq
		}
		if o.Seq == 0 {
			legacy = append(legacy, name)
		}
	}
	sort.Strings(legacy)
	for _, name := range legacy {
		last++
		o := set.cache[name]
		o.Seq = last
		set.cache[name] = o
	}
	s.seq.Store(last)
	return s, nil
}

// List returns offer names in insertion order.
func (s *CatalogStore) List() []string {
	offers := s.ordered()
	names := make([]string, len(offers))
	for i, o := range offers {
		names[i] = o.Name
	}
	return names
}

func (s *CatalogStore) ordered() []domain.Offer {
	all := s.set.values()
	out := make([]domain.Offer, 0, len(all))
	for _, o := range all {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *CatalogStore) Get(name string) (domain.Offer, bool) {
	return s.set.get(name)
}

// Exists reports whether name is taken.
func (s *CatalogStore) Exists(name string) bool {
	_, ok := s.set.get(name)
	return ok
}

// Put creates or overwrites the offer. An overwrite keeps the original position.
func (s *CatalogStore) Put(ctx context.Context, name string, o domain.Offer) error {
	unlock := s.set.lock(name)
	defer unlock()

	o.Name = name
	if existing, ok := s.set.get(name); ok {
		o.Seq = existing.Seq
	} else {
		o.Seq = s.seq.Add(1)
	}
	return s.set.commit(ctx, map[string]domain.Offer{name: o})
}

// Create stores a new offer with a zero view count. The absence check and the
// write happen under the same key lock, so two concurrent creates of one name
// cannot both succeed.
func (s *CatalogStore) Create(ctx context.Context, name string, o domain.Offer) error {
	unlock := s.set.lock(name)
	defer unlock()

	if _, ok := s.set.get(name); ok {
		return ErrOfferExists
	}
	o.Name = name
	o.Views = 0
	o.Seq = s.seq.Add(1)
	return s.set.commit(ctx, map[string]domain.Offer{name: o})
}

// Update applies fn to an existing offer. Name, position and view count are not
// editable through fn.
func (s *CatalogStore) Update(ctx context.Context, name string, fn func(*domain.Offer) error) (domain.Offer, error) {
	unlock := s.set.lock(name)
	defer unlock()

	current, ok := s.set.get(name)
	if !ok {
		return domain.Offer{}, ErrOfferNotFound
	}
	next := current
	if err := fn(&next); err != nil {
		return domain.Offer{}, err
	}
	next.Name, next.Seq, next.Views = current.Name, current.Seq, current.Views
	if err := s.set.commit(ctx, map[string]domain.Offer{name: next}); err != nil {
		return domain.Offer{}, err
	}
	return next, nil
}

func (s *CatalogStore) Remove(ctx context.Context, name string) error {
	unlock := s.set.lock(name)
	defer unlock()

	if _, ok := s.set.get(name); !ok {
		return ErrOfferNotFound
	}
	return s.set.remove(ctx, name)
}

// IncrementView bumps the view counter by exactly one and returns the updated offer.
func (s *CatalogStore) IncrementView(ctx context.Context, name string) (domain.Offer, error) {
	unlock := s.set.lock(name)
	defer unlock()

	o, ok := s.set.get(name)
	if !ok {
		return domain.Offer{}, ErrOfferNotFound
	}
	o.Views++
	if err := s.set.commit(ctx, map[string]domain.Offer{name: o}); err != nil {
		return domain.Offer{}, err
	}
	offerViews.WithLabelValues(name).Inc()
	return o, nil
}

// Stats returns per-offer view counts in catalog order and their sum.
func (s *CatalogStore) Stats() domain.CatalogStats {
	offers := s.ordered()
	stats := domain.CatalogStats{Offers: make([]domain.OfferStat, 0, len(offers))}
	for _, o := range offers {
		stats.Offers = append(stats.Offers, domain.OfferStat{Name: o.Name, Views: o.Views})
		stats.Total += o.Views
	}
	return stats
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/offerledger/internal/domain"
	"github.com/punchamoorthee/offerledger/internal/service"
	"github.com/punchamoorthee/offerledger/internal/store"
)

// Config holds the benchmark settings
var (
	dataDir     string
	concurrency int
	duration    time.Duration
	workload    string
	referrers   int
	offers      int
	bonus       int64
)

// Metrics
var (
	totalOps     uint64
	signups      uint64
	referred     uint64
	replays      uint64
	views        uint64
	failPersist  uint64
	failOther    uint64
	nextIdentity int64
)

func init() {
	flag.StringVar(&dataDir, "dir", "", "Data directory (default: a temp dir)")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 10*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&referrers, "referrers", 100, "Accounts created up front that others refer to")
	flag.IntVar(&offers, "offers", 20, "Catalog size")
	flag.Int64Var(&bonus, "bonus", 2500, "Referral bonus")
}

type bench struct {
	catalog  *store.CatalogStore
	ledger   *store.LedgerStore
	accounts *service.AccountService
}

func main() {
	flag.Parse()
	log := logrus.New()
	quiet := logrus.New()
	quiet.SetLevel(logrus.WarnLevel)

	if dataDir == "" {
		dir, err := os.MkdirTemp("", "offerledger-bench-")
		if err != nil {
			log.WithError(err).Fatal("unable to create temp dir")
		}
		defer os.RemoveAll(dir)
		dataDir = dir
	}

	b, err := setup(context.Background(), quiet)
	if err != nil {
		log.WithError(err).Fatal("setup failed")
	}
	log.WithFields(logrus.Fields{"workload": workload, "workers": concurrency, "duration": duration}).
		Info("Starting Benchmark")

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go b.worker(&wg, start)
	}
	wg.Wait()
	elapsed := time.Since(start)

	violations := b.verify()
	printResults(elapsed, violations)
	if len(violations) > 0 {
		os.Exit(1)
	}
}

func setup(ctx context.Context, log logrus.FieldLogger) (*bench, error) {
	backend, err := store.NewFileBackend(dataDir)
	if err != nil {
		return nil, err
	}
	catalog, err := store.NewCatalogStore(ctx, backend)
	if err != nil {
		return nil, err
	}
	ledger, err := store.NewLedgerStore(ctx, backend)
	if err != nil {
		return nil, err
	}
	resolver := service.NewReferralResolver(bonus, nil, log)
	accounts := service.NewAccountService(ledger, resolver, nil, log)

	for i := 1; i <= offers; i++ {
		name := fmt.Sprintf("offer-%03d", i)
		if err := catalog.Create(ctx, name, domain.Offer{Body: name}); err != nil && !errors.Is(err, store.ErrOfferExists) {
			return nil, err
		}
	}
	for id := int64(1); id <= int64(referrers); id++ {
		if _, err := accounts.Start(ctx, id, ""); err != nil {
			return nil, err
		}
	}
	atomic.StoreInt64(&nextIdentity, int64(referrers))
	return &bench{catalog: catalog, ledger: ledger, accounts: accounts}, nil
}

func (b *bench) worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	ctx := context.Background()
	names := b.catalog.List()

	for time.Since(start) < duration {
		atomic.AddUint64(&totalOps, 1)
		switch r := rand.Float32(); {
		case r < 0.4:
			b.signup(ctx)
		case r < 0.5:
			b.replay(ctx)
		default:
			if _, err := b.catalog.IncrementView(ctx, names[rand.Intn(len(names))]); err != nil {
				countFailure(err)
				continue
			}
			atomic.AddUint64(&views, 1)
		}
	}
}

func (b *bench) signup(ctx context.Context) {
	id := atomic.AddInt64(&nextIdentity, 1)
	res, err := b.accounts.Start(ctx, id, service.ReferralPrefix+fmt.Sprint(pickReferrer()))
	if err != nil {
		countFailure(err)
		return
	}
	atomic.AddUint64(&signups, 1)
	if res.Referrer != 0 {
		atomic.AddUint64(&referred, 1)
	}
}

// replay re-sends a referral token for an existing identity; it must change nothing.
func (b *bench) replay(ctx context.Context) {
	highest := atomic.LoadInt64(&nextIdentity)
	id := rand.Int63n(highest) + 1
	res, err := b.accounts.Start(ctx, id, service.ReferralPrefix+fmt.Sprint(pickReferrer()))
	if err != nil {
		countFailure(err)
		return
	}
	// The identity may still be in flight in another worker, in which case this
	// call is the one that creates it.
	if res.Created && res.Referrer != 0 {
		atomic.AddUint64(&referred, 1)
	}
	atomic.AddUint64(&replays, 1)
}

func pickReferrer() int64 {
	if workload == "hotspot" && rand.Float32() < 0.90 {
		return 1
	}
	return int64(rand.Intn(referrers) + 1)
}

func countFailure(err error) {
	if errors.Is(err, store.ErrPersist) {
		atomic.AddUint64(&failPersist, 1)
		return
	}
	atomic.AddUint64(&failOther, 1)
}

// verify checks the ledger and view counters against what the workers did.
func (b *bench) verify() []string {
	var violations []string
	counts := map[int64]int64{}
	var linked uint64
	for _, acc := range b.ledger.Accounts() {
		if acc.HasReferrer() {
			counts[acc.ReferredBy]++
			linked++
		}
	}
	for _, acc := range b.ledger.Accounts() {
		if acc.ReferralCount != counts[acc.UserID] {
			violations = append(violations, fmt.Sprintf("account %d: referral_count %d, linked accounts %d", acc.UserID, acc.ReferralCount, counts[acc.UserID]))
		}
		if acc.Balance != acc.ReferralCount*bonus {
			violations = append(violations, fmt.Sprintf("account %d: balance %d, expected %d", acc.UserID, acc.Balance, acc.ReferralCount*bonus))
		}
	}
	if linked != atomic.LoadUint64(&referred) {
		violations = append(violations, fmt.Sprintf("linked accounts %d, credited referrals %d", linked, referred))
	}

	stats := b.catalog.Stats()
	var sum int64
	for _, s := range stats.Offers {
		sum += s.Views
	}
	if sum != stats.Total || uint64(stats.Total) != atomic.LoadUint64(&views) {
		violations = append(violations, fmt.Sprintf("views: total %d, sum %d, recorded %d", stats.Total, sum, views))
	}
	return violations
}

func printResults(d time.Duration, violations []string) {
	total := atomic.LoadUint64(&totalOps)

	results := map[string]interface{}{
		"workload":       workload,
		"duration_sec":   d.Seconds(),
		"total_ops":      total,
		"throughput_ops": float64(total) / d.Seconds(),
		"signups":        atomic.LoadUint64(&signups),
		"referrals":      atomic.LoadUint64(&referred),
		"replays":        atomic.LoadUint64(&replays),
		"views":          atomic.LoadUint64(&views),
		"persist_errors": atomic.LoadUint64(&failPersist),
		"errors":         atomic.LoadUint64(&failOther),
		"invariants_ok":  len(violations) == 0,
		"violations":     violations,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}

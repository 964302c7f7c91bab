package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/offerledger/internal/domain"
	"github.com/punchamoorthee/offerledger/internal/store"
)

var errBonusAlreadyGranted = errors.New("signup bonus already granted")

const grantTimeout = 10 * time.Second

// BonusScheduler arms one deferred signup-bonus job per account. The granted flag is
// checked when the job fires, inside the ledger's key lock, never when it is armed.
// Jobs cannot be cancelled: an owed bonus keeps its BonusDueAt until granted and
// Recover re-arms it after a restart.
type BonusScheduler struct {
	ledger   *store.LedgerStore
	notifier Notifier
	amount   int64
	delay    time.Duration
	log      logrus.FieldLogger

	mu      sync.Mutex
	timers  map[int64]*time.Timer
	stopped bool
	running sync.WaitGroup
}

func NewBonusScheduler(ledger *store.LedgerStore, notifier Notifier, amount int64, delay time.Duration, log logrus.FieldLogger) *BonusScheduler {
	return &BonusScheduler{
		ledger:   ledger,
		notifier: notifier,
		amount:   amount,
		delay:    delay,
		log:      log,
		timers:   make(map[int64]*time.Timer),
	}
}

// Enabled reports whether a non-zero bonus is configured.
func (b *BonusScheduler) Enabled() bool {
	return b.amount > 0
}

// DueAt is the time a bonus armed at now becomes payable.
func (b *BonusScheduler) DueAt(now time.Time) time.Time {
	return now.Add(b.delay)
}

// Schedule arms the job for userID to fire at due. It returns false when a job is
// already pending for that user or the scheduler is stopped.
func (b *BonusScheduler) Schedule(userID int64, due time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return false
	}
	if _, ok := b.timers[userID]; ok {
		return false
	}
	wait := time.Until(due)
	if wait < 0 {
		wait = 0
	}
	b.timers[userID] = time.AfterFunc(wait, func() { b.fire(userID) })
	return true
}

func (b *BonusScheduler) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.timers)
}

func (b *BonusScheduler) fire(userID int64) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	delete(b.timers, userID)
	b.running.Add(1)
	b.mu.Unlock()
	defer b.running.Done()

	ctx, cancel := context.WithTimeout(context.Background(), grantTimeout)
	defer cancel()

	entry := b.log.WithField("user_id", userID)
	granted, err := b.Grant(ctx, userID)
	switch {
	case errors.Is(err, store.ErrAccountNotFound):
		entry.Warn("signup bonus skipped: account not found")
		return
	case err != nil:
		entry.WithError(err).Error("signup bonus grant failed")
		return
	case !granted:
		return
	}
	entry.WithField("amount", b.amount).Info("signup bonus granted")

	if b.notifier == nil {
		return
	}
	text := fmt.Sprintf("🎁 Welcome bonus: +%d added to your balance!", b.amount)
	if err := b.notifier.Notify(ctx, userID, text); err != nil {
		entry.WithError(err).Warn("signup bonus notification failed")
	}
}

// Grant credits the bonus if it has not been granted yet. It is safe to call any
// number of times concurrently; at most one call returns true per account.
func (b *BonusScheduler) Grant(ctx context.Context, userID int64) (bool, error) {
	_, err := b.ledger.Update(ctx, userID, func(acc *domain.Account) error {
		if acc.SignupBonusGranted {
			return errBonusAlreadyGranted
		}
		acc.Balance += b.amount
		acc.SignupBonusGranted = true
		acc.BonusDueAt = nil
		return nil
	})
	if errors.Is(err, errBonusAlreadyGranted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ledgerCredits.WithLabelValues("signup").Inc()
	return true, nil
}

// Recover arms jobs for every account still owed a bonus, including those whose
// due time passed while the process was down. It returns the number newly armed.
func (b *BonusScheduler) Recover() int {
	if !b.Enabled() {
		return 0
	}
	armed := 0
	for _, acc := range b.ledger.Accounts() {
		if acc.SignupBonusGranted || acc.BonusDueAt == nil {
			continue
		}
		if b.Schedule(acc.UserID, *acc.BonusDueAt) {
			armed++
		}
	}
	return armed
}

// Stop disarms every pending job and waits for jobs already firing.
func (b *BonusScheduler) Stop() {
	b.mu.Lock()
	b.stopped = true
	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
	b.mu.Unlock()
	b.running.Wait()
}

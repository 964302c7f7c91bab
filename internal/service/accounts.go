package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/offerledger/internal/domain"
	"github.com/punchamoorthee/offerledger/internal/store"
)

// StartResult describes the outcome of a first-contact interaction.
type StartResult struct {
	Account  domain.Account
	Created  bool
	Referrer int64 // credited referrer, 0 when none
}

// AccountService owns account creation, the referral transaction and bonus arming.
type AccountService struct {
	ledger   *store.LedgerStore
	resolver *ReferralResolver
	bonus    *BonusScheduler
	log      logrus.FieldLogger
}

func NewAccountService(ledger *store.LedgerStore, resolver *ReferralResolver, bonus *BonusScheduler, log logrus.FieldLogger) *AccountService {
	return &AccountService{ledger: ledger, resolver: resolver, bonus: bonus, log: log}
}

// Start returns the caller's account, creating it on first contact. Creation, the
// referrer link and the referrer credit are written as one batch so neither side can
// be persisted without the other. Existing accounts are returned untouched, which
// makes replayed referral tokens no-ops.
func (s *AccountService) Start(ctx context.Context, userID int64, payload string) (StartResult, error) {
	if acc, ok := s.ledger.Lookup(userID); ok {
		return StartResult{Account: acc}, nil
	}

	ids := []int64{userID}
	referrer, hasReferrer := s.resolver.Candidate(userID, payload)
	if hasReferrer {
		ids = append(ids, referrer)
	}

	var res StartResult
	err := s.ledger.Tx(ctx, ids, func(tx *store.LedgerTx) error {
		if acc, ok := tx.Get(userID); ok {
			res = StartResult{Account: acc}
			return nil
		}
		now := tx.Now()
		acc := domain.Account{UserID: userID, CreatedAt: now}
		if s.bonus != nil && s.bonus.Enabled() {
			due := s.bonus.DueAt(now)
			acc.BonusDueAt = &due
		}
		if hasReferrer && s.resolver.Resolve(tx, &acc, referrer) {
			res.Referrer = referrer
		}
		tx.Put(acc)
		res.Account = acc
		res.Created = true
		return nil
	})
	if err != nil {
		return StartResult{}, err
	}

	if res.Created {
		entry := s.log.WithField("user_id", userID)
		if res.Referrer != 0 {
			entry = entry.WithField("referrer_id", res.Referrer)
			s.resolver.NotifyCredited(ctx, res.Referrer, userID)
		}
		entry.Info("account created")
		if res.Account.BonusDueAt != nil {
			s.bonus.Schedule(userID, *res.Account.BonusDueAt)
		}
	}
	return res, nil
}

// Balance returns the account, creating it when the user skipped /start.
func (s *AccountService) Balance(ctx context.Context, userID int64) (domain.Account, error) {
	if acc, ok := s.ledger.Lookup(userID); ok {
		return acc, nil
	}
	res, err := s.Start(ctx, userID, "")
	return res.Account, err
}

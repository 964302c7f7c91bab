package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/offerledger/internal/domain"
	"github.com/punchamoorthee/offerledger/internal/store"
)

// ReferralPrefix marks a referral token in the /start payload.
const ReferralPrefix = "ref_"

var ledgerCredits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "offerledger_ledger_credits_total",
	Help: "Balance credits applied to accounts, labeled by kind",
}, []string{"kind"})

// Notifier delivers a best-effort text message to a user.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// ParseReferral decodes a referral token. Anything other than the prefix followed
// by a positive decimal identity is "no referral".
func ParseReferral(payload string) (int64, bool) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, ReferralPrefix) {
		return 0, false
	}
	digits := payload[len(ReferralPrefix):]
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ReferralLink renders the deep link that carries a referral token for userID.
func ReferralLink(botUsername string, userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%d", botUsername, ReferralPrefix, userID)
}

// ReferralResolver performs the one-time referrer credit inside account creation.
type ReferralResolver struct {
	bonus    int64
	notifier Notifier
	log      logrus.FieldLogger
}

func NewReferralResolver(bonus int64, notifier Notifier, log logrus.FieldLogger) *ReferralResolver {
	return &ReferralResolver{bonus: bonus, notifier: notifier, log: log}
}

// Candidate returns the referrer named by payload when it may apply to userID.
func (r *ReferralResolver) Candidate(userID int64, payload string) (int64, bool) {
	referrer, ok := ParseReferral(payload)
	if !ok || referrer == userID {
		return 0, false
	}
	return referrer, true
}

// Resolve links acc to referrer and credits the referrer, staging both records in tx.
// tx must hold both identities. It is a silent no-op when the referrer has no
// account or acc already has a referrer.
func (r *ReferralResolver) Resolve(tx *store.LedgerTx, acc *domain.Account, referrer int64) bool {
	if referrer == 0 || referrer == acc.UserID || acc.HasReferrer() {
		return false
	}
	ref, ok := tx.Get(referrer)
	if !ok {
		return false
	}
	acc.ReferredBy = referrer
	ref.ReferralCount++
	ref.Balance += r.bonus
	tx.Put(ref)
	return true
}

// NotifyCredited tells the referrer about the credit. Failures are logged and dropped.
func (r *ReferralResolver) NotifyCredited(ctx context.Context, referrer, referred int64) {
	ledgerCredits.WithLabelValues("referral").Inc()
	if r.notifier == nil {
		return
	}
	text := fmt.Sprintf("🎉 A new user joined with your link! +%d added to your balance.", r.bonus)
	if err := r.notifier.Notify(ctx, referrer, text); err != nil {
		r.log.WithField("user_id", referrer).
			WithField("referred_id", referred).
			WithError(err).
			Warn("referral notification failed")
	}
}

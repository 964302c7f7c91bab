package domain

import (
	"strings"
	"time"
)

// Offer is a catalog entry shown to users. Empty strings mean "absent".
// The JSON field names match the catalog file written by earlier releases,
// so an existing games.json loads unchanged.
type Offer struct {
	Name        string `json:"name,omitempty"`
	Body        string `json:"text"`
	ImageRef    string `json:"photo_id,omitempty"`
	FileRef     string `json:"file_id,omitempty"`
	ButtonLabel string `json:"button_text,omitempty"`
	ButtonURL   string `json:"button_url,omitempty"`
	Views       int64  `json:"views"`
	Seq         int64  `json:"seq,omitempty"`
}

// MaxNameBytes bounds an offer name so that every callback carrying it fits
// Telegram's 64-byte callback data limit. The longest prefix is "adm:field:button:".
const MaxNameBytes = 64 - len("adm:field:button:")

// ValidName reports whether name is non-blank and short enough to be addressed
// from an inline keyboard.
func ValidName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && len(name) <= MaxNameBytes
}

// HasButton reports whether the call-to-action button can be rendered.
// A label without a URL (or the reverse) is stored but inert.
func (o Offer) HasButton() bool {
	return strings.TrimSpace(o.ButtonLabel) != "" && strings.TrimSpace(o.ButtonURL) != ""
}

// Account represents a user's balance and referral state in the ledger.
type Account struct {
	UserID             int64      `json:"user_id"`
	Balance            int64      `json:"balance"`
	ReferredBy         int64      `json:"referred_by,omitempty"`
	ReferralCount      int64      `json:"referral_count"`
	SignupBonusGranted bool       `json:"signup_bonus_granted"`
	BonusDueAt         *time.Time `json:"bonus_due_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// HasReferrer reports whether the write-once referrer link is set.
func (a Account) HasReferrer() bool {
	return a.ReferredBy != 0
}

// OfferStat is one row of the admin statistics view.
type OfferStat struct {
	Name  string `json:"name"`
	Views int64  `json:"views"`
}

// CatalogStats aggregates view counters; Total always equals the sum of Offers[i].Views.
type CatalogStats struct {
	Offers []OfferStat `json:"offers"`
	Total  int64       `json:"total"`
}

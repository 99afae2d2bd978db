package game

import "maps"

// PlayerRecord is the full persisted state of one player.
type PlayerRecord struct {
	ID             string           `json:"id"`
	Username       string           `json:"username"`
	Coins          int64            `json:"coins"`
	Businesses     map[string]int64 `json:"businesses"`
	Level          int              `json:"level"`
	LastMine       int64            `json:"lastMine"`
	ReferredBy     *string          `json:"referredBy"`
	ReferralsCount int64            `json:"referralsCount"`
	Subscribed     bool             `json:"subscribed"`
	LanguageCode   string           `json:"languageCode"`
}

// Clone returns a deep copy so callers can mutate it without aliasing the
// businesses map or the referral pointer.
func (r PlayerRecord) Clone() PlayerRecord {
	out := r
	out.Businesses = make(map[string]int64, len(r.Businesses))
	maps.Copy(out.Businesses, r.Businesses)
	if r.ReferredBy != nil {
		ref := *r.ReferredBy
		out.ReferredBy = &ref
	}
	return out
}

// Referral returns the referral code or "" when the player was not referred.
func (r PlayerRecord) Referral() string {
	if r.ReferredBy == nil {
		return ""
	}
	return *r.ReferredBy
}

// IsGuest reports whether the record belongs to the local placeholder identity.
func (r PlayerRecord) IsGuest() bool {
	return r.ID == GuestID
}

// TotalVentures is the number of owned ventures across all types.
func (r PlayerRecord) TotalVentures() int64 {
	var total int64
	for _, qty := range r.Businesses {
		total += qty
	}
	return total
}

type Venture struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Cost   int64  `json:"cost"`
	Income int64  `json:"income"`
}

// StringPtr returns a pointer to s, or nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

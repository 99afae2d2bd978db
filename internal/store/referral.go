package store

import (
	"strings"

	"tototycoon/internal/identity"
)

// PlanReferral decides what a registration's referral code points at before
// any row is touched: the normalized code to store and the referrer to credit.
// A self-referral yields no code and OutcomeSelfReferral.
func PlanReferral(in ReferralInput) (code, referrerID, outcome string) {
	code = identity.NormalizeReferral(in.ReferralCode)
	if code == "" {
		return "", "", OutcomeNoReferral
	}
	referrerID = identity.ReferrerID(code)
	if referrerID == "" {
		return "", "", OutcomeNoReferral
	}
	if referrerID == strings.TrimSpace(in.PlayerID) {
		return "", "", OutcomeSelfReferral
	}
	return code, referrerID, ""
}

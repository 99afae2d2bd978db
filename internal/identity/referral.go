package identity

import (
	"fmt"
	"net/url"
	"strings"
)

// ReferralPrefix marks a referral code: "ref_<identity>".
const ReferralPrefix = "ref_"

// URL query keys that may carry a referral code, in lookup order.
var urlReferralKeys = []string{"start", "startapp"}

// NormalizeReferral turns a raw deep-link value into a referral code.
// "" means no referral.
func NormalizeReferral(raw string) string {
	val := strings.TrimSpace(raw)
	switch {
	case val == "":
		return ""
	case strings.HasPrefix(val, ReferralPrefix):
		return val
	case isDigits(val):
		return ReferralPrefix + val
	default:
		return val
	}
}

// ReferralFromURL extracts a normalized referral code from a launch URL or a
// bare query string.
func ReferralFromURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	var query url.Values
	if u, err := url.Parse(rawURL); err == nil && (u.RawQuery != "" || u.Scheme != "") {
		query = u.Query()
	} else {
		q, err := url.ParseQuery(strings.TrimPrefix(rawURL, "?"))
		if err != nil {
			return ""
		}
		query = q
	}
	for _, key := range urlReferralKeys {
		if v := query.Get(key); v != "" {
			return NormalizeReferral(v)
		}
	}
	return ""
}

// ReferrerID strips the referral marker, returning the referrer's identity.
func ReferrerID(code string) string {
	return strings.TrimPrefix(strings.TrimSpace(code), ReferralPrefix)
}

// ReferralLink is the deep link a player shares to recruit others.
func ReferralLink(botUsername, playerID string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%s", strings.TrimPrefix(botUsername, "@"), ReferralPrefix, playerID)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

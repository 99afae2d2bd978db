package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingHash     = errors.New("init data has no hash")
	ErrBadSignature    = errors.New("init data signature mismatch")
	ErrInitDataExpired = errors.New("init data expired")
)

// InitDataVerifier checks host-signed launch payloads against a shared secret.
type InitDataVerifier struct {
	key    []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewInitDataVerifier derives the HMAC key as SHA-256 of the shared secret.
// maxAge of zero disables the auth_date freshness check.
func NewInitDataVerifier(secret string, maxAge time.Duration) *InitDataVerifier {
	sum := sha256.Sum256([]byte(secret))
	return &InitDataVerifier{key: sum[:], maxAge: maxAge, now: time.Now}
}

// Verify returns the parsed fields when the signature matches.
func (v *InitDataVerifier) Verify(initData string) (url.Values, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("parse init data: %w", err)
	}
	hash := values.Get("hash")
	if hash == "" {
		return nil, ErrMissingHash
	}
	got, err := hex.DecodeString(hash)
	if err != nil {
		return nil, ErrBadSignature
	}
	if !hmac.Equal(got, v.sign(values)) {
		return nil, ErrBadSignature
	}
	if v.maxAge > 0 {
		sec, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil || v.now().Sub(time.Unix(sec, 0)) > v.maxAge {
			return nil, ErrInitDataExpired
		}
	}
	return values, nil
}

// Sign computes the hex signature for values, ignoring any existing hash.
func (v *InitDataVerifier) Sign(values url.Values) string {
	return hex.EncodeToString(v.sign(values))
}

func (v *InitDataVerifier) sign(values url.Values) []byte {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(CheckString(values)))
	return mac.Sum(nil)
}

// CheckString is every field except hash as "key=value", sorted and joined
// with newlines.
func CheckString(values url.Values) string {
	entries := make([]string, 0, len(values))
	for k, vs := range values {
		if k == "hash" {
			continue
		}
		for _, val := range vs {
			entries = append(entries, k+"="+val)
		}
	}
	sort.Strings(entries)
	return strings.Join(entries, "\n")
}

package store

import (
	"context"
	"errors"

	"tototycoon/internal/game"
)

var (
	// ErrNotFound means the identity has no row. It is not a failure.
	ErrNotFound = errors.New("player not found")
	// ErrTransient wraps connectivity and storage failures.
	ErrTransient = errors.New("remote store unavailable")
)

// Store is the authoritative player record store.
type Store interface {
	Get(ctx context.Context, id string) (game.PlayerRecord, error)
	// Upsert creates or replaces the row keyed by rec.ID and returns it as
	// persisted. referrals_count is never taken from rec and referred_by is
	// only written while still null.
	Upsert(ctx context.Context, rec game.PlayerRecord) (game.PlayerRecord, error)
}

// ReferralInput is the registration payload handed to the crediting operation.
type ReferralInput struct {
	PlayerID     string
	Username     string
	LanguageCode string
	ReferralCode string
	Bonus        int64
}

// Outcomes reported by HandleReferral.
const (
	OutcomeCredited        = "credited"
	OutcomeNoReferral      = "no_referral"
	OutcomeSelfReferral    = "self_referral"
	OutcomeUnknownReferrer = "unknown_referrer"
	OutcomeAlreadyExists   = "already_registered"
)

type ReferralResult struct {
	Created    bool   `json:"created"`
	Credited   bool   `json:"credited"`
	ReferrerID string `json:"referrer_id,omitempty"`
	Outcome    string `json:"outcome"`
}

// Crediter runs the atomic create-player-and-credit-referrer operation. A
// referred identity credits its referrer at most once no matter how often it
// is called.
type Crediter interface {
	HandleReferral(ctx context.Context, in ReferralInput) (ReferralResult, error)
}

package memory

import (
	"context"
	"fmt"
	"sync"

	"tototycoon/internal/game"
	"tototycoon/internal/store"
)

// Store is an in-process implementation of the remote store and the
// crediting operation.
type Store struct {
	mu      sync.Mutex
	players map[string]game.PlayerRecord
	credits map[string]string // referred id -> referrer id

	// FailGet and FailUpsert, when set, are returned wrapped in ErrTransient.
	FailGet    error
	FailUpsert error
	FailCredit error
}

var (
	_ store.Store    = (*Store)(nil)
	_ store.Crediter = (*Store)(nil)
)

func New() *Store {
	return &Store{
		players: make(map[string]game.PlayerRecord),
		credits: make(map[string]string),
	}
}

func (s *Store) Get(_ context.Context, id string) (game.PlayerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailGet != nil {
		return game.PlayerRecord{}, transient(s.FailGet)
	}
	rec, ok := s.players[id]
	if !ok {
		return game.PlayerRecord{}, store.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) Upsert(_ context.Context, rec game.PlayerRecord) (game.PlayerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpsert != nil {
		return game.PlayerRecord{}, transient(s.FailUpsert)
	}
	next := store.RowFromRecord(rec).ToRecord()
	if existing, ok := s.players[rec.ID]; ok {
		next.ReferralsCount = existing.ReferralsCount
		if existing.ReferredBy != nil {
			next.ReferredBy = existing.ReferredBy
		}
	}
	s.players[rec.ID] = next
	return next.Clone(), nil
}

func (s *Store) HandleReferral(_ context.Context, in store.ReferralInput) (store.ReferralResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCredit != nil {
		return store.ReferralResult{}, s.FailCredit
	}

	code, referrerID, outcome := store.PlanReferral(in)
	if _, exists := s.players[in.PlayerID]; exists {
		res := store.ReferralResult{Outcome: store.OutcomeAlreadyExists}
		if prior, ok := s.credits[in.PlayerID]; ok {
			res.ReferrerID = prior
		}
		return res, nil
	}

	rec := game.PlayerRecord{
		ID:           in.PlayerID,
		Username:     in.Username,
		Businesses:   map[string]int64{},
		Level:        game.DefaultLevel,
		LanguageCode: in.LanguageCode,
		ReferredBy:   game.StringPtr(code),
	}
	if rec.LanguageCode == "" {
		rec.LanguageCode = game.DefaultLanguage
	}
	s.players[in.PlayerID] = rec

	res := store.ReferralResult{Created: true, Outcome: outcome}
	if referrerID == "" {
		return res, nil
	}
	res.ReferrerID = referrerID
	referrer, ok := s.players[referrerID]
	if !ok {
		res.Outcome = store.OutcomeUnknownReferrer
		return res, nil
	}
	if _, claimed := s.credits[in.PlayerID]; claimed {
		res.Outcome = store.OutcomeAlreadyExists
		return res, nil
	}
	s.credits[in.PlayerID] = referrerID
	referrer.Coins += in.Bonus
	referrer.ReferralsCount++
	s.players[referrerID] = referrer
	res.Credited = true
	res.Outcome = store.OutcomeCredited
	return res, nil
}

// Put seeds a record directly, bypassing upsert rules.
func (s *Store) Put(rec game.PlayerRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[rec.ID] = rec.Clone()
}

// Credits returns how many referral credits a referrer has received.
func (s *Store) Credits(referrerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.credits {
		if r == referrerID {
			n++
		}
	}
	return n
}

func transient(err error) error {
	return fmt.Errorf("%w: %w", store.ErrTransient, err)
}

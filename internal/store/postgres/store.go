package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tototycoon/internal/game"
	"tototycoon/internal/store"
)

var (
	_ store.Store    = (*Store)(nil)
	_ store.Crediter = (*Store)(nil)
)

// Store keeps players in the users table and referral claims in
// referral_credits.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const selectColumns = `id, username, coins, businesses, level, last_mine, referred_by, referrals_count, subscribed, language_code`

func (s *Store) Get(ctx context.Context, id string) (game.PlayerRecord, error) {
	rec, err := scanPlayer(s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return game.PlayerRecord{}, store.ErrNotFound
	}
	if err != nil {
		return game.PlayerRecord{}, fmt.Errorf("%w: get player: %w", store.ErrTransient, err)
	}
	return rec, nil
}

func (s *Store) Upsert(ctx context.Context, rec game.PlayerRecord) (game.PlayerRecord, error) {
	row := store.RowFromRecord(rec)
	businesses, err := encodeBusinesses(row.Businesses)
	if err != nil {
		return game.PlayerRecord{}, err
	}
	saved, err := scanPlayer(s.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, coins, businesses, level, last_mine, referred_by, subscribed, language_code, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			coins = EXCLUDED.coins,
			businesses = EXCLUDED.businesses,
			level = EXCLUDED.level,
			last_mine = EXCLUDED.last_mine,
			referred_by = COALESCE(users.referred_by, EXCLUDED.referred_by),
			subscribed = EXCLUDED.subscribed,
			language_code = EXCLUDED.language_code,
			updated_at = now()
		RETURNING `+selectColumns,
		rec.ID, rec.Username, rec.Coins, businesses, rec.Level, rec.LastMine,
		row.ReferredBy, rec.Subscribed, rec.LanguageCode))
	if err != nil {
		return game.PlayerRecord{}, fmt.Errorf("%w: upsert player: %w", store.ErrTransient, err)
	}
	return saved, nil
}

// HandleReferral creates the player when missing and, only on that first
// creation, credits the referrer. The referral_credits primary key on the
// referred id is the claim that keeps the bonus to one payout.
func (s *Store) HandleReferral(ctx context.Context, in store.ReferralInput) (store.ReferralResult, error) {
	code, referrerID, outcome := store.PlanReferral(in)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return store.ReferralResult{}, fmt.Errorf("%w: begin: %w", store.ErrTransient, err)
	}
	defer tx.Rollback(ctx)

	username := in.Username
	if username == "" {
		username = game.DefaultUsername
	}
	lang := in.LanguageCode
	if lang == "" {
		lang = game.DefaultLanguage
	}
	cmd, err := tx.Exec(ctx, `
		INSERT INTO users (id, username, language_code, referred_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, in.PlayerID, username, lang, game.StringPtr(code))
	if err != nil {
		return store.ReferralResult{}, fmt.Errorf("%w: insert player: %w", store.ErrTransient, err)
	}
	res := store.ReferralResult{Created: cmd.RowsAffected() == 1}

	if !res.Created {
		var prior string
		err := tx.QueryRow(ctx, `SELECT referrer_id FROM referral_credits WHERE referred_id = $1`, in.PlayerID).Scan(&prior)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return store.ReferralResult{}, fmt.Errorf("%w: lookup credit: %w", store.ErrTransient, err)
		default:
			res.ReferrerID = prior
		}
		res.Outcome = store.OutcomeAlreadyExists
		return res, commit(ctx, tx)
	}

	if referrerID == "" {
		res.Outcome = outcome
		return res, commit(ctx, tx)
	}

	cmd, err = tx.Exec(ctx, `
		INSERT INTO referral_credits (referred_id, referrer_id, bonus)
		SELECT $1, $2, $3
		WHERE EXISTS (SELECT 1 FROM users WHERE id = $2)
		ON CONFLICT (referred_id) DO NOTHING
	`, in.PlayerID, referrerID, in.Bonus)
	if err != nil {
		return store.ReferralResult{}, fmt.Errorf("%w: claim credit: %w", store.ErrTransient, err)
	}
	if cmd.RowsAffected() == 0 {
		res.Outcome = store.OutcomeUnknownReferrer
		return res, commit(ctx, tx)
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('toto.crediting', 'on', true)`); err != nil {
		return store.ReferralResult{}, fmt.Errorf("%w: credit referrer: %w", store.ErrTransient, err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE users
		SET coins = coins + $2, referrals_count = referrals_count + 1, updated_at = now()
		WHERE id = $1
	`, referrerID, in.Bonus); err != nil {
		return store.ReferralResult{}, fmt.Errorf("%w: credit referrer: %w", store.ErrTransient, err)
	}
	if err := commit(ctx, tx); err != nil {
		return store.ReferralResult{}, err
	}
	res.Credited = true
	res.ReferrerID = referrerID
	res.Outcome = store.OutcomeCredited
	return res, nil
}

func commit(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", store.ErrTransient, err)
	}
	return nil
}

func scanPlayer(row pgx.Row) (game.PlayerRecord, error) {
	var (
		r          store.Row
		businesses []byte
	)
	if err := row.Scan(&r.ID, &r.Username, &r.Coins, &businesses, &r.Level, &r.LastMine,
		&r.ReferredBy, &r.ReferralsCount, &r.Subscribed, &r.LanguageCode); err != nil {
		return game.PlayerRecord{}, err
	}
	r.Businesses = store.DecodeBusinesses(businesses)
	return r.ToRecord(), nil
}

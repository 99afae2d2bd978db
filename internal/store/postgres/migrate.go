package postgres

import (
	"context"
	"encoding/json"
	"fmt"
)

// Migrate creates the schema. Every statement is idempotent so it runs on each
// API start when auto-migrate is enabled.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT 'CEO',
			coins BIGINT NOT NULL DEFAULT 0,
			businesses JSONB NOT NULL DEFAULT '{}'::jsonb,
			level INT NOT NULL DEFAULT 1,
			last_mine BIGINT NOT NULL DEFAULT 0,
			referred_by TEXT,
			referrals_count BIGINT NOT NULL DEFAULT 0,
			subscribed BOOLEAN NOT NULL DEFAULT false,
			language_code TEXT NOT NULL DEFAULT 'en',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS users_coins_idx ON users (coins DESC);`,
		`CREATE TABLE IF NOT EXISTS referral_credits (
			referred_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			referrer_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			bonus BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS referral_credits_referrer_idx ON referral_credits (referrer_id);`,
		// referred_by is write-once; referrals_count only moves inside a
		// crediting transaction, which sets toto.crediting locally.
		`CREATE OR REPLACE FUNCTION users_referred_by_write_once() RETURNS trigger AS $$
		BEGIN
			IF OLD.referred_by IS NOT NULL THEN
				NEW.referred_by := OLD.referred_by;
			END IF;
			IF current_setting('toto.crediting', true) IS DISTINCT FROM 'on' THEN
				NEW.referrals_count := OLD.referrals_count;
			END IF;
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;`,
		`DROP TRIGGER IF EXISTS users_referred_by_write_once ON users;`,
		`CREATE TRIGGER users_referred_by_write_once
			BEFORE UPDATE ON users
			FOR EACH ROW EXECUTE FUNCTION users_referred_by_write_once();`,
		`CREATE OR REPLACE FUNCTION handle_referral(
			p_new_user_id TEXT,
			p_new_username TEXT,
			p_language_code TEXT,
			p_referred_by TEXT,
			p_bonus BIGINT
		) RETURNS JSON AS $$
		DECLARE
			v_code TEXT := NULLIF(btrim(p_referred_by), '');
			v_referrer TEXT;
			v_created BOOLEAN;
			v_claimed INT;
			v_prior TEXT;
		BEGIN
			IF COALESCE(NULLIF(current_setting('request.jwt.claims', true), '')::json->>'role', 'service_role') <> 'service_role' THEN
				RAISE EXCEPTION 'handle_referral requires the service role' USING ERRCODE = '42501';
			END IF;
			IF p_bonus IS NULL OR p_bonus <= 0 OR p_bonus > 10000 THEN
				RAISE EXCEPTION 'handle_referral: bonus out of range' USING ERRCODE = '22023';
			END IF;
			IF v_code ~ '^[0-9]+$' THEN
				v_code := 'ref_' || v_code;
			END IF;
			v_referrer := NULLIF(regexp_replace(v_code, '^ref_', ''), '');
			IF v_referrer IS NULL THEN
				v_code := NULL;
			ELSIF v_referrer = p_new_user_id THEN
				v_code := NULL;
			END IF;

			INSERT INTO users (id, username, language_code, referred_by)
			VALUES (p_new_user_id, COALESCE(NULLIF(p_new_username, ''), 'CEO'),
				COALESCE(NULLIF(p_language_code, ''), 'en'), v_code)
			ON CONFLICT (id) DO NOTHING;
			GET DIAGNOSTICS v_claimed = ROW_COUNT;
			v_created := v_claimed = 1;

			IF NOT v_created THEN
				SELECT referrer_id INTO v_prior FROM referral_credits WHERE referred_id = p_new_user_id;
				RETURN json_build_object('created', false, 'credited', false,
					'referrer_id', v_prior, 'outcome', 'already_registered');
			END IF;
			IF v_referrer IS NULL THEN
				RETURN json_build_object('created', true, 'credited', false, 'outcome', 'no_referral');
			END IF;
			IF v_code IS NULL THEN
				RETURN json_build_object('created', true, 'credited', false, 'outcome', 'self_referral');
			END IF;

			INSERT INTO referral_credits (referred_id, referrer_id, bonus)
			SELECT p_new_user_id, v_referrer, p_bonus
			WHERE EXISTS (SELECT 1 FROM users WHERE id = v_referrer)
			ON CONFLICT (referred_id) DO NOTHING;
			GET DIAGNOSTICS v_claimed = ROW_COUNT;
			IF v_claimed = 0 THEN
				RETURN json_build_object('created', true, 'credited', false, 'outcome', 'unknown_referrer');
			END IF;

			PERFORM set_config('toto.crediting', 'on', true);
			UPDATE users
			SET coins = coins + p_bonus, referrals_count = referrals_count + 1, updated_at = now()
			WHERE id = v_referrer;
			RETURN json_build_object('created', true, 'credited', true,
				'referrer_id', v_referrer, 'outcome', 'credited');
		END;
		$$ LANGUAGE plpgsql SECURITY DEFINER;`,
		`REVOKE ALL ON FUNCTION handle_referral(TEXT, TEXT, TEXT, TEXT, BIGINT) FROM PUBLIC;`,
		// Supabase grants EXECUTE on new public functions to its API roles
		// directly, so revoking from PUBLIC alone leaves the anon key able to
		// call it. Plain Postgres has none of these roles.
		`DO $$
		BEGIN
			IF EXISTS (SELECT 1 FROM pg_roles WHERE rolname = 'anon') THEN
				REVOKE EXECUTE ON FUNCTION handle_referral(TEXT, TEXT, TEXT, TEXT, BIGINT) FROM anon;
			END IF;
			IF EXISTS (SELECT 1 FROM pg_roles WHERE rolname = 'authenticated') THEN
				REVOKE EXECUTE ON FUNCTION handle_referral(TEXT, TEXT, TEXT, TEXT, BIGINT) FROM authenticated;
			END IF;
			IF EXISTS (SELECT 1 FROM pg_roles WHERE rolname = 'service_role') THEN
				GRANT EXECUTE ON FUNCTION handle_referral(TEXT, TEXT, TEXT, TEXT, BIGINT) TO service_role;
			END IF;
		END;
		$$;`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

func encodeBusinesses(b map[string]int64) ([]byte, error) {
	if b == nil {
		b = map[string]int64{}
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode businesses: %w", err)
	}
	return raw, nil
}

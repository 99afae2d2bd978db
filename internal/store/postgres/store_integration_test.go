package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tototycoon/internal/db"
	"tototycoon/internal/game"
	"tototycoon/internal/store"
)

// TestStoreIntegration runs against a real database. The ids are unique per
// run so it can share a database with other data.
func TestStoreIntegration(t *testing.T) {
	if os.Getenv("RUN_PG_INTEGRATION") != "true" {
		t.Skip("set RUN_PG_INTEGRATION=true to run this integration test")
	}
	_ = godotenv.Load("../../../.env")
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	pool, err := db.Connect(ctx, dbURL, db.PoolOptions{MaxConns: 8})
	require.NoError(t, err)
	defer pool.Close()

	s := New(pool)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx), "migrations must be re-runnable")

	base := time.Now().UnixNano()
	referrer := fmt.Sprintf("it%d", base)
	referred := fmt.Sprintf("it%d", base+1)

	t.Run("get missing", func(t *testing.T) {
		_, err := s.Get(ctx, referrer)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("upsert round trip", func(t *testing.T) {
		rec := game.NewGuest()
		rec.ID = referrer
		rec.Username = "Referrer"
		rec.Coins = 40
		rec.Businesses = map[string]int64{"APPLE": 2}
		saved, err := s.Upsert(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, int64(40), saved.Coins)
		assert.Equal(t, int64(2), saved.Businesses["APPLE"])
	})

	t.Run("concurrent registrations credit once", func(t *testing.T) {
		in := store.ReferralInput{PlayerID: referred, Username: "New", ReferralCode: "ref_" + referrer, Bonus: 100}
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			credited int
		)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := s.HandleReferral(ctx, in)
				if !assert.NoError(t, err) {
					return
				}
				if res.Credited {
					mu.Lock()
					credited++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, credited)

		got, err := s.Get(ctx, referrer)
		require.NoError(t, err)
		assert.Equal(t, int64(140), got.Coins)
		assert.Equal(t, int64(1), got.ReferralsCount)
	})

	t.Run("client save keeps server counters", func(t *testing.T) {
		rec := game.NewGuest()
		rec.ID = referrer
		rec.Username = "Referrer"
		rec.Coins = 141
		saved, err := s.Upsert(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, int64(1), saved.ReferralsCount)

		other := game.NewGuest()
		other.ID = referred
		other.ReferredBy = game.StringPtr("ref_someone_else")
		saved, err = s.Upsert(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, "ref_"+referrer, saved.Referral())
	})

	t.Run("direct writes cannot move the referral counter", func(t *testing.T) {
		_, err := pool.Exec(ctx, `UPDATE users SET referrals_count = 99, referred_by = 'ref_x' WHERE id = $1`, referred)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, `UPDATE users SET referrals_count = 99 WHERE id = $1`, referrer)
		require.NoError(t, err)

		got, err := s.Get(ctx, referrer)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ReferralsCount)
		got, err = s.Get(ctx, referred)
		require.NoError(t, err)
		assert.Equal(t, "ref_"+referrer, got.Referral())
	})

	t.Run("sql function rejects api roles and bad bonuses", func(t *testing.T) {
		tx, err := pool.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)
		_, err = tx.Exec(ctx, `SELECT set_config('request.jwt.claims', '{"role":"anon"}', true)`)
		require.NoError(t, err)
		var raw string
		err = tx.QueryRow(ctx, `SELECT handle_referral($1, 'x', 'en', $2, 100)::text`,
			fmt.Sprintf("it%d", base+3), "ref_"+referrer).Scan(&raw)
		assert.Error(t, err)

		err = pool.QueryRow(ctx, `SELECT handle_referral($1, 'x', 'en', $2, 1000000)::text`,
			fmt.Sprintf("it%d", base+4), "ref_"+referrer).Scan(&raw)
		assert.Error(t, err)

		got, err := s.Get(ctx, referrer)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ReferralsCount)
	})

	t.Run("api roles cannot execute the crediting function", func(t *testing.T) {
		for _, role := range []string{"anon", "authenticated"} {
			var exists bool
			require.NoError(t, pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`, role).Scan(&exists))
			if !exists {
				continue
			}
			var allowed bool
			require.NoError(t, pool.QueryRow(ctx,
				`SELECT has_function_privilege($1, 'handle_referral(text, text, text, text, bigint)', 'EXECUTE')`, role).Scan(&allowed))
			assert.False(t, allowed, role)
		}
	})

	t.Run("sql function matches", func(t *testing.T) {
		var raw string
		err := pool.QueryRow(ctx, `SELECT handle_referral($1, 'x', 'en', $1, 100)::text`, fmt.Sprintf("it%d", base+2)).Scan(&raw)
		require.NoError(t, err)
		assert.Contains(t, raw, store.OutcomeSelfReferral)
	})
}

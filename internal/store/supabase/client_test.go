package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tototycoon/internal/game"
	"tototycoon/internal/store"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "anon-key")
}

func TestGetFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/users", r.URL.Path)
		assert.Equal(t, "eq.42", r.URL.Query().Get("id"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		_, _ = io.WriteString(w, `[{"id":"42","username":"ann","coins":250,"businesses":{"APPLE":1},"referrals_count":3}]`)
	})

	rec, err := c.Get(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "ann", rec.Username)
	assert.Equal(t, int64(250), rec.Coins)
	assert.Equal(t, int64(1), rec.Businesses["APPLE"])
	assert.Equal(t, int64(3), rec.ReferralsCount)
	assert.Equal(t, game.DefaultLanguage, rec.LanguageCode)
}

func TestGetToleratesMalformedBusinesses(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"42","coins":10,"businesses":{"APPLE":2,"TOTO_VAULT":"many"}}]`)
	})

	rec, err := c.Get(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.Coins)
	assert.Equal(t, map[string]int64{"APPLE": 2}, rec.Businesses)
}

func TestGetNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})

	_, err := c.Get(context.Background(), "42")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NotErrorIs(t, err, store.ErrTransient)
}

func TestGetServerErrorIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"message":"down"}`)
	})

	_, err := c.Get(context.Background(), "42")
	assert.ErrorIs(t, err, store.ErrTransient)
	assert.NotErrorIs(t, err, store.ErrNotFound)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Status)
}

func TestGetUnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := NewClient(base, "k").Get(context.Background(), "42")
	assert.ErrorIs(t, err, store.ErrTransient)
}

func TestUpsertSendsMergeAndReturnsPersistedRow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "id", r.URL.Query().Get("on_conflict"))
		assert.Contains(t, r.Header.Get("Prefer"), "resolution=merge-duplicates")
		assert.Contains(t, r.Header.Get("Prefer"), "return=representation")

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "referrals_count")
		assert.Equal(t, "7", body["id"])

		_, _ = io.WriteString(w, `[{"id":"7","username":"bo","coins":9,"referrals_count":4,"referred_by":"ref_1"}]`)
	})

	rec := game.NewGuest()
	rec.ID = "7"
	rec.Username = "bo"
	rec.Coins = 9
	saved, err := c.Upsert(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int64(4), saved.ReferralsCount)
	assert.Equal(t, "ref_1", saved.Referral())
}

func TestHandleReferralRPC(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/handle_referral", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2", body["p_new_user_id"])
		assert.Equal(t, "ref_1", body["p_referred_by"])
		assert.Equal(t, float64(100), body["p_bonus"])
		_, _ = io.WriteString(w, `{"created":true,"credited":true,"referrer_id":"1","outcome":"credited"}`)
	})

	res, err := c.HandleReferral(context.Background(), store.ReferralInput{PlayerID: "2", Username: "b", ReferralCode: "ref_1", Bonus: 100})
	require.NoError(t, err)
	assert.True(t, res.Credited)
	assert.Equal(t, "1", res.ReferrerID)
}

func TestHandleReferralNullCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		v, ok := body["p_referred_by"]
		assert.True(t, ok)
		assert.Nil(t, v)
		_, _ = io.WriteString(w, `{"created":true,"outcome":"no_referral"}`)
	})

	res, err := c.HandleReferral(context.Background(), store.ReferralInput{PlayerID: "2", Username: "b"})
	require.NoError(t, err)
	assert.Equal(t, store.OutcomeNoReferral, res.Outcome)
}

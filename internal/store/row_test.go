package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tototycoon/internal/game"
)

func TestRowDefaultsForPartialRow(t *testing.T) {
	var row Row
	require.NoError(t, json.Unmarshal([]byte(`{"id":"7"}`), &row))

	rec := row.ToRecord()
	assert.Equal(t, "7", rec.ID)
	assert.Equal(t, game.DefaultUsername, rec.Username)
	assert.Zero(t, rec.Coins)
	assert.NotNil(t, rec.Businesses)
	assert.Empty(t, rec.Businesses)
	assert.Equal(t, game.DefaultLevel, rec.Level)
	assert.Zero(t, rec.LastMine)
	assert.Nil(t, rec.ReferredBy)
	assert.Zero(t, rec.ReferralsCount)
	assert.False(t, rec.Subscribed)
	assert.Equal(t, game.DefaultLanguage, rec.LanguageCode)
}

func TestRowNullsUseDefaults(t *testing.T) {
	var row Row
	raw := `{"id":"7","username":"ann","coins":null,"businesses":null,"level":3,"last_mine":1700,"referred_by":null,"referrals_count":2,"subscribed":true,"language_code":null}`
	require.NoError(t, json.Unmarshal([]byte(raw), &row))

	rec := row.ToRecord()
	assert.Equal(t, "ann", rec.Username)
	assert.Zero(t, rec.Coins)
	assert.Equal(t, 3, rec.Level)
	assert.Equal(t, int64(1700), rec.LastMine)
	assert.Nil(t, rec.ReferredBy)
	assert.Equal(t, int64(2), rec.ReferralsCount)
	assert.True(t, rec.Subscribed)
	assert.Equal(t, game.DefaultLanguage, rec.LanguageCode)
}

func TestRowFromRecordOmitsServerOwnedFields(t *testing.T) {
	rec := game.NewGuest()
	rec.ID = "9"
	rec.ReferralsCount = 12

	raw, err := json.Marshal(RowFromRecord(rec))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.NotContains(t, fields, "referrals_count")
	assert.NotContains(t, fields, "referred_by")
	assert.Equal(t, "9", fields["id"])
	assert.Equal(t, float64(game.GuestCoins), fields["coins"])

	rec.ReferredBy = game.StringPtr("ref_1")
	raw, err = json.Marshal(RowFromRecord(rec))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "ref_1", fields["referred_by"])
}

func TestDecodeBusinesses(t *testing.T) {
	assert.Equal(t, map[string]int64{"APPLE": 2}, DecodeBusinesses([]byte(`{"APPLE":2,"X":0}`)))
	assert.Empty(t, DecodeBusinesses(nil))
	assert.Empty(t, DecodeBusinesses([]byte(`null`)))
	assert.Empty(t, DecodeBusinesses([]byte(`[1,2]`)))
	assert.Equal(t, map[string]int64{"APPLE": 3}, DecodeBusinesses([]byte(`{"APPLE":3,"BAD":"lots","NIL":null,"HALF":0.5}`)))
}

func TestRowUnmarshalToleratesBadBusinesses(t *testing.T) {
	var row Row
	require.NoError(t, json.Unmarshal([]byte(`{"id":"7","coins":12,"businesses":{"APPLE":2,"BAD":"x"}}`), &row))
	rec := row.ToRecord()
	assert.Equal(t, "7", rec.ID)
	assert.Equal(t, int64(12), rec.Coins)
	assert.Equal(t, map[string]int64{"APPLE": 2}, rec.Businesses)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"8","businesses":"garbage"}`), &row))
	assert.Empty(t, row.ToRecord().Businesses)
}

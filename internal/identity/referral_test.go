package identity

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tototycoon/internal/game"
)

func TestNormalizeReferral(t *testing.T) {
	cases := map[string]string{
		"123":       "ref_123",
		"ref_123":   "ref_123",
		"":          "",
		"   ":       "",
		" 42 ":      "ref_42",
		"campaign7": "campaign7",
		"12a":       "12a",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeReferral(in), "input %q", in)
	}
}

func TestReferralFromURL(t *testing.T) {
	assert.Equal(t, "ref_99", ReferralFromURL("https://game.example/?start=99"))
	assert.Equal(t, "ref_7", ReferralFromURL("https://game.example/?startapp=ref_7"))
	assert.Equal(t, "ref_1", ReferralFromURL("https://game.example/?start=1&startapp=2"))
	assert.Equal(t, "ref_5", ReferralFromURL("?startapp=5"))
	assert.Equal(t, "ref_6", ReferralFromURL("start=6"))
	assert.Equal(t, "", ReferralFromURL("https://game.example/"))
	assert.Equal(t, "", ReferralFromURL(""))
}

func TestReferrerIDAndLink(t *testing.T) {
	assert.Equal(t, "12345", ReferrerID("ref_12345"))
	assert.Equal(t, "12345", ReferrerID("12345"))
	assert.Equal(t, "https://t.me/Mine_cifcitotobot?start=ref_77", ReferralLink("@Mine_cifcitotobot", "77"))
}

func initData(t *testing.T, user string, startParam string) string {
	t.Helper()
	v := url.Values{}
	if user != "" {
		v.Set("user", user)
	}
	if startParam != "" {
		v.Set("start_param", startParam)
	}
	v.Set("auth_date", "1700000000")
	v.Set("hash", "deadbeef")
	return v.Encode()
}

func TestResolveHostUser(t *testing.T) {
	p, err := NewInitDataProvider(initData(t, `{"id":555,"first_name":"Ann","username":"ann_ceo","language_code":"fr"}`, "321"))
	require.NoError(t, err)

	res := Resolve(p, "https://game.example/?start=999")
	assert.False(t, res.Guest)
	assert.Equal(t, "555", res.ID)
	assert.Equal(t, "ann_ceo", res.DisplayName)
	assert.Equal(t, "fr", res.Locale)
	assert.Equal(t, "ref_321", res.Referral, "host start param must win over the URL")
	assert.NotEmpty(t, res.InitData)
}

func TestResolveFallsBackToURLReferral(t *testing.T) {
	p, err := NewInitDataProvider(initData(t, `{"id":8,"first_name":"Bo"}`, ""))
	require.NoError(t, err)

	res := Resolve(p, "https://game.example/?startapp=4")
	assert.Equal(t, "Bo", res.DisplayName)
	assert.Equal(t, game.DefaultLanguage, res.Locale)
	assert.Equal(t, "ref_4", res.Referral)
}

func TestResolveGuest(t *testing.T) {
	res := Resolve(NoHost{}, "https://game.example/?start=12")
	assert.True(t, res.Guest)
	assert.Equal(t, game.GuestID, res.ID)
	assert.Equal(t, "ref_12", res.Referral)

	res = Resolve(nil, "")
	assert.True(t, res.Guest)
	assert.Empty(t, res.Referral)
}

func TestResolveHostWithoutUserIsGuest(t *testing.T) {
	p, err := NewInitDataProvider(initData(t, "", "ref_3"))
	require.NoError(t, err)
	res := Resolve(p, "")
	assert.True(t, res.Guest)
	assert.Equal(t, "ref_3", res.Referral)
}

func TestParseInitDataErrors(t *testing.T) {
	_, err := ParseInitData("")
	assert.ErrorIs(t, err, ErrEmptyInitData)

	_, err = ParseInitData("user=%7Bnot-json")
	assert.Error(t, err)
}

func TestDisplayNameFallbacks(t *testing.T) {
	assert.Equal(t, "remote", DisplayName(&HostUser{}, "remote"))
	assert.Equal(t, game.DefaultUsername, DisplayName(nil, ""))
	assert.Equal(t, "de", Locale(nil, "de"))
}

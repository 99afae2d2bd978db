package game

import (
	"errors"
	"time"
)

const (
	// MineCooldown is the minimum time between two mining actions.
	MineCooldown = 60 * time.Second

	// Base mining reward is drawn uniformly from [MineBaseMin, MineBaseMax].
	MineBaseMin = int64(2)
	MineBaseMax = int64(3)

	// ReferralBonus is credited to a referrer once per referred player.
	ReferralBonus = int64(100)
	// MaxReferralBonus bounds a configured bonus; the SQL crediting function
	// rejects anything larger.
	MaxReferralBonus = int64(10000)

	GuestID       = "guest"
	GuestUsername = "Guest CEO"
	GuestCoins    = int64(100)

	DefaultUsername = "CEO"
	DefaultLanguage = "en"
	DefaultLevel    = 1
)

var (
	ErrMineCooldown      = errors.New("mining is cooling down")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownVenture    = errors.New("unknown venture")
)

// Catalog is the static venture price and income table.
var Catalog = []Venture{
	{ID: "Hire_Miner", Name: "Hire Miner", Cost: 1_000, Income: 1},
	{ID: "TOTO_VAULT", Name: "TOTO VAULT", Cost: 2_000, Income: 2},
	{ID: "CIFCI_STABLE", Name: "CIFCI STABLE COIN", Cost: 5_000, Income: 4},
	{ID: "TYPOGRAM", Name: "TYPOGRAM", Cost: 100_000, Income: 5},
	{ID: "APPLE", Name: "APPLE", Cost: 200_000, Income: 5},
	{ID: "BITCOIN", Name: "BITCOIN", Cost: 1_000_000, Income: 10},
}

func LookupVenture(id string) (Venture, bool) {
	for _, v := range Catalog {
		if v.ID == id {
			return v, true
		}
	}
	return Venture{}, false
}

var levelThresholds = []struct {
	below int64
	label string
}{
	{1_000, "Intern"},
	{10_000, "Manager"},
	{100_000, "CEO"},
	{700_000, "Tycoon"},
}

// LevelLabel returns the rank title shown for a coin balance.
func LevelLabel(coins int64) string {
	for _, t := range levelThresholds {
		if coins < t.below {
			return t.label
		}
	}
	return "CEO TOTO"
}

// ReferralEarnings is the total bonus a player earned from referrals.
func ReferralEarnings(referralsCount int64) int64 {
	return referralsCount * ReferralBonus
}

// NewGuest returns the default record used before (or instead of) a real identity.
func NewGuest() PlayerRecord {
	return PlayerRecord{
		ID:           GuestID,
		Username:     GuestUsername,
		Coins:        GuestCoins,
		Businesses:   map[string]int64{},
		Level:        DefaultLevel,
		LanguageCode: DefaultLanguage,
	}
}

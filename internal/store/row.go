package store

import (
	"encoding/json"

	"tototycoon/internal/game"
)

// Row is the wire/storage shape of a player. Every field is optional on read.
type Row struct {
	ID             string           `json:"id"`
	Username       *string          `json:"username,omitempty"`
	Coins          *int64           `json:"coins,omitempty"`
	Businesses     map[string]int64 `json:"businesses,omitempty"`
	Level          *int             `json:"level,omitempty"`
	LastMine       *int64           `json:"last_mine,omitempty"`
	ReferredBy     *string          `json:"referred_by,omitempty"`
	ReferralsCount *int64           `json:"referrals_count,omitempty"`
	Subscribed     *bool            `json:"subscribed,omitempty"`
	LanguageCode   *string          `json:"language_code,omitempty"`
}

// UnmarshalJSON reads businesses through DecodeBusinesses so one bad
// quantity drops that entry instead of failing the whole row.
func (r *Row) UnmarshalJSON(b []byte) error {
	type plain Row
	var aux struct {
		plain
		Businesses json.RawMessage `json:"businesses"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = Row(aux.plain)
	r.Businesses = DecodeBusinesses(aux.Businesses)
	return nil
}

// ToRecord fills defaults for anything the row left out.
func (r Row) ToRecord() game.PlayerRecord {
	rec := game.PlayerRecord{
		ID:           r.ID,
		Username:     game.DefaultUsername,
		Businesses:   map[string]int64{},
		Level:        game.DefaultLevel,
		LanguageCode: game.DefaultLanguage,
	}
	if r.Username != nil {
		rec.Username = *r.Username
	}
	if r.Coins != nil && *r.Coins > 0 {
		rec.Coins = *r.Coins
	}
	for id, qty := range r.Businesses {
		if qty > 0 {
			rec.Businesses[id] = qty
		}
	}
	if r.Level != nil {
		rec.Level = *r.Level
	}
	if r.LastMine != nil {
		rec.LastMine = *r.LastMine
	}
	if r.ReferredBy != nil && *r.ReferredBy != "" {
		ref := *r.ReferredBy
		rec.ReferredBy = &ref
	}
	if r.ReferralsCount != nil && *r.ReferralsCount > 0 {
		rec.ReferralsCount = *r.ReferralsCount
	}
	if r.Subscribed != nil {
		rec.Subscribed = *r.Subscribed
	}
	if r.LanguageCode != nil && *r.LanguageCode != "" {
		rec.LanguageCode = *r.LanguageCode
	}
	return rec
}

// RowFromRecord builds the client-writable row for an upsert. The referral
// counter is server-owned and left out; referred_by is only sent when set.
func RowFromRecord(rec game.PlayerRecord) Row {
	businesses := rec.Businesses
	if businesses == nil {
		businesses = map[string]int64{}
	}
	return Row{
		ID:           rec.ID,
		Username:     &rec.Username,
		Coins:        &rec.Coins,
		Businesses:   businesses,
		Level:        &rec.Level,
		LastMine:     &rec.LastMine,
		ReferredBy:   game.StringPtr(rec.Referral()),
		Subscribed:   &rec.Subscribed,
		LanguageCode: &rec.LanguageCode,
	}
}

// DecodeBusinesses parses a businesses column, tolerating null and garbage.
// Entries that are not positive numbers are dropped.
func DecodeBusinesses(raw []byte) map[string]int64 {
	out := map[string]int64{}
	if len(raw) == 0 {
		return out
	}
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return out
	}
	for id, v := range parsed {
		var qty float64
		if err := json.Unmarshal(v, &qty); err != nil {
			continue
		}
		if qty >= 1 {
			out[id] = int64(qty)
		}
	}
	return out
}

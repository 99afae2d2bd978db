package game

import (
	"fmt"
	"time"

	"tototycoon/internal/dependencies/random"
)

// PassiveIncome is the coin amount owned ventures add to every mining action.
// Ids missing from the catalog contribute nothing.
func PassiveIncome(businesses map[string]int64) int64 {
	var total int64
	for id, qty := range businesses {
		v, ok := LookupVenture(id)
		if !ok || qty <= 0 {
			continue
		}
		total += qty * v.Income
	}
	return total
}

func CanMine(lastMine, now int64, cooldown time.Duration) bool {
	return now-lastMine >= cooldown.Milliseconds()
}

// MineReward draws the base reward from [MineBaseMin, MineBaseMax] and adds
// passive income.
func MineReward(rnd random.Random, businesses map[string]int64) int64 {
	base := MineBaseMin + int64(rnd.Intn(int(MineBaseMax-MineBaseMin+1)))
	return base + PassiveIncome(businesses)
}

// Engine applies player actions to records. Failed actions return the input
// record unchanged together with the reason.
type Engine struct {
	rnd      random.Random
	cooldown time.Duration
}

func NewEngine(rnd random.Random, cooldown time.Duration) *Engine {
	if rnd == nil {
		rnd = random.New()
	}
	if cooldown <= 0 {
		cooldown = MineCooldown
	}
	return &Engine{rnd: rnd, cooldown: cooldown}
}

func (e *Engine) Cooldown() time.Duration {
	return e.cooldown
}

func (e *Engine) ApplyMine(rec PlayerRecord, now int64) (PlayerRecord, error) {
	if !CanMine(rec.LastMine, now, e.cooldown) {
		return rec, ErrMineCooldown
	}
	out := rec.Clone()
	out.Coins += MineReward(e.rnd, rec.Businesses)
	out.LastMine = now
	return out, nil
}

func ApplyPurchase(rec PlayerRecord, ventureID string) (PlayerRecord, error) {
	v, ok := LookupVenture(ventureID)
	if !ok {
		return rec, fmt.Errorf("%w: %s", ErrUnknownVenture, ventureID)
	}
	if rec.Coins < v.Cost {
		return rec, fmt.Errorf("%w: %s costs %d, balance %d", ErrInsufficientFunds, v.Name, v.Cost, rec.Coins)
	}
	out := rec.Clone()
	out.Coins -= v.Cost
	out.Businesses[v.ID]++
	return out, nil
}

func ToggleSubscription(rec PlayerRecord) PlayerRecord {
	out := rec.Clone()
	out.Subscribed = !out.Subscribed
	return out
}

// NextMineAt returns the epoch millisecond at which mining becomes available.
func (e *Engine) NextMineAt(rec PlayerRecord) int64 {
	return rec.LastMine + e.cooldown.Milliseconds()
}

package syncq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tototycoon/internal/cache"
	"tototycoon/internal/dependencies/clock"
	"tototycoon/internal/game"
	"tototycoon/internal/identity"
	"tototycoon/internal/referral"
	"tototycoon/internal/store"
)

// ErrNotReady is returned by actions issued before Bootstrap finished.
var ErrNotReady = errors.New("player state is still loading")

const (
	DefaultDebounce    = time.Second
	DefaultCallTimeout = 10 * time.Second
)

// Registrar is the registration endpoint as seen from the game client.
type Registrar interface {
	Register(ctx context.Context, req referral.Request) (referral.Result, error)
}

type Deps struct {
	Provider  identity.Provider
	LaunchURL string
	// Store is nil when no remote store is configured; every read then
	// behaves as a transient failure.
	Store     store.Store
	Registrar Registrar
	Cache     *cache.Local
	Engine    *game.Engine
	Clock     clock.Clock
	Logger    *slog.Logger
	// Debounce is the quiet period before a mutation is saved remotely.
	Debounce    time.Duration
	CallTimeout time.Duration
}

// Coordinator owns the in-memory player record. It reconciles it with the
// remote store at startup and persists it after a quiet period following
// each mutation.
type Coordinator struct {
	deps Deps
	log  *slog.Logger

	mu         sync.Mutex
	state      game.PlayerRecord
	resolution identity.Resolution
	ready      bool
	dirty      bool

	// saveMu keeps remote saves in order; each save snapshots the state
	// only once it holds the lock, so the last save carries the newest record.
	saveMu    sync.Mutex
	debouncer *Debouncer
}

func New(deps Deps) *Coordinator {
	if deps.Provider == nil {
		deps.Provider = identity.NoHost{}
	}
	if deps.Engine == nil {
		deps.Engine = game.NewEngine(nil, 0)
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Debounce <= 0 {
		deps.Debounce = DefaultDebounce
	}
	if deps.CallTimeout <= 0 {
		deps.CallTimeout = DefaultCallTimeout
	}
	c := &Coordinator{deps: deps, log: deps.Logger}
	c.debouncer = NewDebouncer(deps.Debounce, c.saveInBackground)
	return c
}

// Bootstrap resolves the identity and loads the starting record. It never
// fails: every remote problem degrades to a cached or default record.
func (c *Coordinator) Bootstrap(ctx context.Context) game.PlayerRecord {
	res := identity.Resolve(c.deps.Provider, c.deps.LaunchURL)

	var rec game.PlayerRecord
	if res.Guest {
		rec = game.NewGuest()
		rec.ReferredBy = game.StringPtr(res.Referral)
	} else {
		rec = c.loadPlayer(ctx, res)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolution = res
	c.state = rec.Clone()
	c.ready = true
	c.dirty = false
	c.deps.Cache.Set(ctx, rec.ID, rec)
	c.log.Info("player loaded", "player_id", rec.ID, "guest", res.Guest)
	return rec.Clone()
}

func (c *Coordinator) loadPlayer(ctx context.Context, res identity.Resolution) game.PlayerRecord {
	remote, err := c.get(ctx, res.ID)
	switch {
	case err == nil:
		return overlayIdentity(remote, res)

	case errors.Is(err, store.ErrNotFound):
		candidate := newCandidate(res)
		c.register(ctx, res, candidate)
		remote, err := c.get(ctx, res.ID)
		if err != nil {
			c.log.Warn("re-read after registration failed, using local candidate", "player_id", res.ID, "err", err)
			return candidate
		}
		return overlayIdentity(remote, res)

	default:
		c.log.Warn("remote store unavailable, using local cache", "player_id", res.ID, "err", err)
		if cached, ok := c.deps.Cache.Get(ctx, res.ID); ok {
			return cached
		}
		rec := game.NewGuest()
		rec.ID = res.ID
		rec.Username = res.DisplayName
		rec.LanguageCode = res.Locale
		return rec
	}
}

func (c *Coordinator) get(ctx context.Context, id string) (game.PlayerRecord, error) {
	if c.deps.Store == nil {
		return game.PlayerRecord{}, fmt.Errorf("%w: not configured", store.ErrTransient)
	}
	ctx, cancel := context.WithTimeout(ctx, c.deps.CallTimeout)
	defer cancel()
	return c.deps.Store.Get(ctx, id)
}

func (c *Coordinator) register(ctx context.Context, res identity.Resolution, candidate game.PlayerRecord) {
	if c.deps.Registrar == nil {
		c.log.Warn("no registration endpoint configured, skipping registration", "player_id", res.ID)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.deps.CallTimeout)
	defer cancel()
	out, err := c.deps.Registrar.Register(ctx, referral.Request{
		ID:           candidate.ID,
		Username:     candidate.Username,
		ReferredBy:   candidate.Referral(),
		InitData:     res.InitData,
		LanguageCode: candidate.LanguageCode,
	})
	if err != nil {
		c.log.Warn("registration failed", "player_id", res.ID, "err", err)
		return
	}
	c.log.Info("registration complete", "player_id", res.ID, "outcome", out.Outcome, "credited", out.Credited)
}

// overlayIdentity keeps the remote record but refreshes the display name and
// locale from the host. Referral fields stay as the server has them.
func overlayIdentity(remote game.PlayerRecord, res identity.Resolution) game.PlayerRecord {
	out := remote.Clone()
	out.Username = identity.DisplayName(res.User, remote.Username)
	out.LanguageCode = identity.Locale(res.User, remote.LanguageCode)
	return out
}

func newCandidate(res identity.Resolution) game.PlayerRecord {
	return game.PlayerRecord{
		ID:           res.ID,
		Username:     res.DisplayName,
		Businesses:   map[string]int64{},
		Level:        game.DefaultLevel,
		ReferredBy:   game.StringPtr(res.Referral),
		LanguageCode: res.Locale,
	}
}

// State returns a copy of the current record and whether Bootstrap ran.
func (c *Coordinator) State() (game.PlayerRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone(), c.ready
}

func (c *Coordinator) Resolution() identity.Resolution {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolution
}

func (c *Coordinator) Engine() *game.Engine {
	return c.deps.Engine
}

func (c *Coordinator) Mine(ctx context.Context) (game.PlayerRecord, error) {
	now := clock.NowMillis(c.deps.Clock)
	return c.mutate(ctx, func(rec game.PlayerRecord) (game.PlayerRecord, error) {
		return c.deps.Engine.ApplyMine(rec, now)
	})
}

func (c *Coordinator) Buy(ctx context.Context, ventureID string) (game.PlayerRecord, error) {
	return c.mutate(ctx, func(rec game.PlayerRecord) (game.PlayerRecord, error) {
		return game.ApplyPurchase(rec, ventureID)
	})
}

func (c *Coordinator) ToggleSubscription(ctx context.Context) (game.PlayerRecord, error) {
	return c.mutate(ctx, func(rec game.PlayerRecord) (game.PlayerRecord, error) {
		return game.ToggleSubscription(rec), nil
	})
}

func (c *Coordinator) mutate(ctx context.Context, apply func(game.PlayerRecord) (game.PlayerRecord, error)) (game.PlayerRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return game.PlayerRecord{}, ErrNotReady
	}
	next, err := apply(c.state)
	if err != nil {
		return c.state.Clone(), err
	}
	c.state = next
	c.deps.Cache.Set(ctx, next.ID, next)
	if !next.IsGuest() {
		c.dirty = true
		c.debouncer.Trigger()
	}
	return next.Clone(), nil
}

// Flush cancels a pending debounced save and saves right away.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.debouncer.Cancel()
	return c.save(ctx)
}

// Close flushes pending changes. Actions after Close return ErrNotReady.
func (c *Coordinator) Close(ctx context.Context) error {
	err := c.Flush(ctx)
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()
	return err
}

func (c *Coordinator) saveInBackground() {
	if err := c.save(context.Background()); err != nil {
		c.log.Warn("save failed, will retry on next change", "err", err)
	}
}

func (c *Coordinator) save(ctx context.Context) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	if !c.ready || !c.dirty || c.state.IsGuest() {
		c.mu.Unlock()
		return nil
	}
	snapshot := c.state.Clone()
	c.dirty = false
	c.mu.Unlock()

	if c.deps.Store == nil {
		c.markDirty()
		return fmt.Errorf("%w: not configured", store.ErrTransient)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.deps.CallTimeout)
	defer cancel()
	saved, err := c.deps.Store.Upsert(callCtx, snapshot)
	if err != nil {
		c.markDirty()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ReferralsCount = saved.ReferralsCount
	c.state.ReferredBy = saved.Clone().ReferredBy
	c.deps.Cache.Set(ctx, c.state.ID, c.state)
	c.log.Debug("player saved", "player_id", saved.ID, "coins", saved.Coins)
	return nil
}

func (c *Coordinator) markDirty() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

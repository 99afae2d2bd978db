package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"tototycoon/internal/game"
)

// ErrMiss is returned by a Backend when nothing is stored under the key.
var ErrMiss = errors.New("cache miss")

// Backend stores opaque values by key.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, value []byte) error
}

// Key is the cache key for a player's record.
func Key(id string) string {
	return "user_" + id
}

// Local is the device-local copy of player records. It never fails: every
// backend error reads as a miss and every failed write is dropped.
type Local struct {
	backend Backend
	log     *slog.Logger
}

func New(backend Backend, log *slog.Logger) *Local {
	if log == nil {
		log = slog.Default()
	}
	return &Local{backend: backend, log: log}
}

func (l *Local) Get(ctx context.Context, id string) (game.PlayerRecord, bool) {
	if l == nil || l.backend == nil {
		return game.PlayerRecord{}, false
	}
	key := Key(id)
	raw, err := l.backend.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			l.log.Debug("cache read failed", "key", key, "err", err)
		}
		return game.PlayerRecord{}, false
	}
	var rec game.PlayerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		l.log.Debug("cache entry malformed", "key", key, "err", err)
		return game.PlayerRecord{}, false
	}
	if rec.Businesses == nil {
		rec.Businesses = map[string]int64{}
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, true
}

func (l *Local) Set(ctx context.Context, id string, rec game.PlayerRecord) {
	if l == nil || l.backend == nil {
		return
	}
	key := Key(id)
	raw, err := json.Marshal(rec)
	if err != nil {
		l.log.Debug("cache encode failed", "key", key, "err", err)
		return
	}
	if err := l.backend.Store(ctx, key, raw); err != nil {
		l.log.Debug("cache write failed", "key", key, "err", err)
	}
}

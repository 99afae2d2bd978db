package referral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tototycoon/internal/game"
	"tototycoon/internal/identity"
	"tototycoon/internal/notify"
	"tototycoon/internal/store"
)

var (
	ErrValidation = errors.New("id and username are required")
	ErrAuth       = errors.New("init data verification failed")
	ErrIntegrity  = errors.New("referral operation failed")
)

// Request is the registration payload, as the game client sends it.
type Request struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	ReferredBy   string `json:"referredBy,omitempty"`
	InitData     string `json:"initData,omitempty"`
	LanguageCode string `json:"languageCode,omitempty"`
}

// UnmarshalJSON accepts id and referredBy as JSON strings or numbers, since
// host platforms hand out numeric user ids.
func (r *Request) UnmarshalJSON(b []byte) error {
	type plain Request
	var aux struct {
		plain
		ID         json.RawMessage `json:"id"`
		ReferredBy json.RawMessage `json:"referredBy"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	id, err := stringOrNumber(aux.ID)
	if err != nil {
		return fmt.Errorf("id: %w", err)
	}
	ref, err := stringOrNumber(aux.ReferredBy)
	if err != nil {
		return fmt.Errorf("referredBy: %w", err)
	}
	*r = Request(aux.plain)
	r.ID = id
	r.ReferredBy = ref
	return nil
}

func stringOrNumber(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}
	if trimmed[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("want a string or number, got %s", trimmed)
	}
	return n.String(), nil
}

type Result = store.ReferralResult

// Verifier checks a signed init-data payload and returns its fields.
type Verifier interface {
	Verify(initData string) (url.Values, error)
}

type Options struct {
	// Verifier is nil when no shared secret is configured.
	Verifier Verifier
	Notifier notify.Notifier
	Bonus    int64
	Logger   *slog.Logger
	// NotifyTimeout bounds the best-effort referrer notification.
	NotifyTimeout time.Duration
}

// Service registers players and credits referrers exactly once.
type Service struct {
	crediter      store.Crediter
	verifier      Verifier
	notifier      notify.Notifier
	bonus         int64
	log           *slog.Logger
	notifyTimeout time.Duration
}

func NewService(crediter store.Crediter, opts Options) *Service {
	s := &Service{
		crediter:      crediter,
		verifier:      opts.Verifier,
		notifier:      opts.Notifier,
		bonus:         opts.Bonus,
		log:           opts.Logger,
		notifyTimeout: opts.NotifyTimeout,
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.bonus <= 0 {
		s.bonus = game.ReferralBonus
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = 10 * time.Second
	}
	return s
}

func (s *Service) Bonus() int64 {
	return s.bonus
}

func (s *Service) Register(ctx context.Context, req Request) (Result, error) {
	req.ID = strings.TrimSpace(req.ID)
	req.Username = strings.TrimSpace(req.Username)
	if req.ID == "" || req.Username == "" {
		return Result{}, ErrValidation
	}

	if err := s.verify(req); err != nil {
		return Result{}, err
	}

	res, err := s.crediter.HandleReferral(ctx, store.ReferralInput{
		PlayerID:     req.ID,
		Username:     req.Username,
		LanguageCode: strings.TrimSpace(req.LanguageCode),
		ReferralCode: req.ReferredBy,
		Bonus:        s.bonus,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
	s.log.Info("player registered",
		"player_id", req.ID,
		"created", res.Created,
		"credited", res.Credited,
		"referrer_id", res.ReferrerID,
		"outcome", res.Outcome,
	)

	if res.Credited && res.ReferrerID != "" {
		s.notify(ctx, res.ReferrerID)
	}
	return res, nil
}

func (s *Service) verify(req Request) error {
	if strings.TrimSpace(req.InitData) == "" {
		return nil
	}
	if s.verifier == nil {
		s.log.Warn("init data verification skipped: no bot token configured", "player_id", req.ID)
		return nil
	}
	values, err := s.verifier.Verify(req.InitData)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}
	raw := values.Get("user")
	if raw == "" {
		return nil
	}
	var user identity.HostUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return fmt.Errorf("%w: decode user: %w", ErrAuth, err)
	}
	if strconv.FormatInt(user.ID, 10) != req.ID {
		return fmt.Errorf("%w: init data belongs to another user", ErrAuth)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, referrerID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	text := fmt.Sprintf("🎉 You earned a referral bonus! (+%d coins)", s.bonus)
	if err := s.notifier.NotifyReferrer(ctx, referrerID, text); err != nil {
		s.log.Warn("referrer notification failed", "referrer_id", referrerID, "err", err)
	}
}

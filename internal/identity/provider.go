package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"tototycoon/internal/game"
)

// HostUser is the user object a host platform hands to the game.
type HostUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// Host is everything the host platform provides at launch.
type Host struct {
	User       *HostUser
	StartParam string
	// InitData is the raw signed payload, forwarded to registration as proof.
	InitData string
}

// Provider exposes the host platform, if the game runs inside one.
type Provider interface {
	Host() (Host, bool)
}

// NoHost is the provider for a plain launch outside any host platform.
type NoHost struct{}

func (NoHost) Host() (Host, bool) { return Host{}, false }

// InitDataProvider reads the host context from a Telegram WebApp init-data
// query string.
type InitDataProvider struct {
	host Host
	ok   bool
}

var ErrEmptyInitData = errors.New("init data is empty")

func NewInitDataProvider(raw string) (*InitDataProvider, error) {
	host, err := ParseInitData(raw)
	if err != nil {
		return nil, err
	}
	return &InitDataProvider{host: host, ok: true}, nil
}

func (p *InitDataProvider) Host() (Host, bool) {
	if p == nil {
		return Host{}, false
	}
	return p.host, p.ok
}

// ParseInitData decodes the unsigned view of an init-data string. It does not
// verify the signature; see auth.InitDataVerifier.
func ParseInitData(raw string) (Host, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Host{}, ErrEmptyInitData
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return Host{}, fmt.Errorf("parse init data: %w", err)
	}
	host := Host{InitData: raw}
	host.StartParam = values.Get("start_param")
	if host.StartParam == "" {
		host.StartParam = values.Get("start_app")
	}
	if u := values.Get("user"); u != "" {
		var user HostUser
		if err := json.Unmarshal([]byte(u), &user); err != nil {
			return Host{}, fmt.Errorf("decode init data user: %w", err)
		}
		host.User = &user
	}
	return host, nil
}

// Resolution is the identity and referral the game starts with.
type Resolution struct {
	ID          string
	Guest       bool
	DisplayName string
	Locale      string
	Referral    string
	InitData    string
	// User is the host user behind a non-guest resolution.
	User *HostUser
}

// Resolve picks the identity from the host user when present, otherwise the
// guest placeholder. The host start parameter wins over the launch URL.
func Resolve(p Provider, launchURL string) Resolution {
	if p == nil {
		p = NoHost{}
	}
	host, ok := p.Host()

	referral := ""
	if ok {
		referral = NormalizeReferral(host.StartParam)
	}
	if referral == "" {
		referral = ReferralFromURL(launchURL)
	}

	if !ok || host.User == nil || host.User.ID == 0 {
		return Resolution{
			ID:          game.GuestID,
			Guest:       true,
			DisplayName: game.GuestUsername,
			Locale:      game.DefaultLanguage,
			Referral:    referral,
		}
	}
	return Resolution{
		ID:          strconv.FormatInt(host.User.ID, 10),
		DisplayName: DisplayName(host.User, ""),
		Locale:      Locale(host.User, ""),
		Referral:    referral,
		InitData:    host.InitData,
		User:        host.User,
	}
}

// DisplayName prefers the host username, then first name, then fallback.
func DisplayName(u *HostUser, fallback string) string {
	if u != nil {
		if name := strings.TrimSpace(u.Username); name != "" {
			return name
		}
		if name := strings.TrimSpace(u.FirstName); name != "" {
			return name
		}
	}
	if fallback != "" {
		return fallback
	}
	return game.DefaultUsername
}

func Locale(u *HostUser, fallback string) string {
	if u != nil && strings.TrimSpace(u.LanguageCode) != "" {
		return strings.TrimSpace(u.LanguageCode)
	}
	if fallback != "" {
		return fallback
	}
	return game.DefaultLanguage
}

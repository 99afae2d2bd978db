package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tototycoon/internal/game"
	"tototycoon/internal/store"
)

// Client talks to the players table through Supabase's PostgREST API.
type Client struct {
	baseURL    string
	apiKey     string
	table      string
	httpClient *http.Client
}

var (
	_ store.Store    = (*Client)(nil)
	_ store.Crediter = (*Client)(nil)
)

// NewClient builds a client. Browsers and the game client use the anon key;
// the registration server uses the service role key. Migrations revoke
// handle_referral from the API roles and the function itself refuses any
// caller whose JWT role is not service_role.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		table:   "users",
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// WithHTTPClient swaps the transport, mainly for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.httpClient = h
	return c
}

func (c *Client) Get(ctx context.Context, id string) (game.PlayerRecord, error) {
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("select", "*")
	var rows []store.Row
	if err := c.do(ctx, http.MethodGet, "/rest/v1/"+c.table+"?"+q.Encode(), nil, nil, &rows); err != nil {
		return game.PlayerRecord{}, err
	}
	if len(rows) == 0 {
		return game.PlayerRecord{}, store.ErrNotFound
	}
	return rows[0].ToRecord(), nil
}

func (c *Client) Upsert(ctx context.Context, rec game.PlayerRecord) (game.PlayerRecord, error) {
	header := http.Header{}
	header.Set("Prefer", "resolution=merge-duplicates,return=representation")
	var rows []store.Row
	path := "/rest/v1/" + c.table + "?on_conflict=id"
	if err := c.do(ctx, http.MethodPost, path, header, store.RowFromRecord(rec), &rows); err != nil {
		return game.PlayerRecord{}, err
	}
	if len(rows) == 0 {
		return game.PlayerRecord{}, fmt.Errorf("%w: upsert returned no row", store.ErrTransient)
	}
	return rows[0].ToRecord(), nil
}

// HandleReferral invokes the handle_referral SQL function created by the
// postgres migrations.
func (c *Client) HandleReferral(ctx context.Context, in store.ReferralInput) (store.ReferralResult, error) {
	payload := map[string]any{
		"p_new_user_id":   in.PlayerID,
		"p_new_username":  in.Username,
		"p_language_code": in.LanguageCode,
		"p_referred_by":   nullable(in.ReferralCode),
		"p_bonus":         in.Bonus,
	}
	var out store.ReferralResult
	if err := c.do(ctx, http.MethodPost, "/rest/v1/rpc/handle_referral", nil, payload, &out); err != nil {
		return store.ReferralResult{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, header http.Header, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: supabase request: %w", store.ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", store.ErrTransient, err)
	}
	return nil
}

// StatusError is a non-2xx PostgREST response. Every status counts as
// transient for the game client; only an empty result set means not found.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("supabase status %d: %s", e.Status, e.Body)
}

func (e *StatusError) Unwrap() error { return store.ErrTransient }

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

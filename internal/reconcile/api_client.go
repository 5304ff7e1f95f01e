package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storefront_ledger/internal/domain"
)

// APIClient reaches the relational tier through the account endpoints of the
// HTTP API. The bearer token scopes every call to the signed-in account.
type APIClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *APIClient) Name() string { return "relational" }

type accountEnvelope struct {
	Account domain.Account `json:"account"`
}

type profilePatch struct {
	DisplayName *string `json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

// Fetch reads GET /account
func (c *APIClient) Fetch(ctx context.Context, key domain.AccountKey) (domain.CachedUserRecord, error) {
	var env accountEnvelope
	if err := c.do(ctx, http.MethodGet, "/account", nil, &env); err != nil {
		return domain.CachedUserRecord{}, err
	}
	if key.AccountID != 0 && env.Account.ID != key.AccountID {
		return domain.CachedUserRecord{}, fmt.Errorf("%w: token belongs to account %d, not %d",
			domain.ErrUnauthorized, env.Account.ID, key.AccountID)
	}
	return domain.RecordFromAccount(env.Account), nil
}

// Store forwards the profile fields of the patch with PATCH /account. Balance
// and audit fields are owned by the server and are not sent.
func (c *APIClient) Store(ctx context.Context, _ domain.AccountKey, patch domain.CachedUserRecord) error {
	body := profilePatch{DisplayName: patch.DisplayName, AvatarURL: patch.AvatarURL}
	if body.DisplayName == nil && body.AvatarURL == nil {
		return nil
	}
	return c.do(ctx, http.MethodPatch, "/account", body, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	var payload io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrRemoteSyncFailure, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: status %d: %s",
			domain.ErrRemoteSyncFailure, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrRemoteSyncFailure, path, err)
	}
	return nil
}

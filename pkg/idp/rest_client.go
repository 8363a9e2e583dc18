package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// RESTClient implements Client against a JSON-over-HTTP identity provider
// admin API. It maps provider status codes onto the package sentinel errors
// and leaves everything else to the caller to wrap as an upstream failure.
type RESTClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// RESTClientOption configures a RESTClient
type RESTClientOption func(*RESTClient)

// WithHTTPClient sets a custom HTTP client, e.g. for test servers or
// tighter timeouts.
func WithHTTPClient(client *http.Client) RESTClientOption {
	return func(c *RESTClient) {
		c.httpClient = client
	}
}

// NewRESTClient creates a client for the provider admin API at baseURL.
// The api key is sent on every request in the Authorization header.
func NewRESTClient(baseURL, apiKey string, opts ...RESTClientOption) *RESTClient {
	c := &RESTClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type accountPayload struct {
	Email       string `json:"email,omitempty"`
	Password    string `json:"password,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// do sends a JSON request and decodes the response into out (when non-nil).
// Cancellation from ctx propagates into the transport.
func (c *RESTClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrAccountNotFound
	case http.StatusConflict:
		return ErrDuplicateEmail
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrInvalidCredentials
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("Identity provider returned unexpected status", "method", method, "path", path, "status", resp.StatusCode)
		return fmt.Errorf("identity provider: unexpected status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// CreateAccount implements Client.CreateAccount
func (c *RESTClient) CreateAccount(ctx context.Context, params CreateAccountParams) (Identity, error) {
	var identity Identity
	payload := accountPayload{
		Email:       NormalizeEmail(params.Email),
		Password:    params.Password,
		DisplayName: params.DisplayName,
	}
	if err := c.do(ctx, http.MethodPost, "/v1/accounts", payload, &identity); err != nil {
		return Identity{}, err
	}
	return identity, nil
}

// GetAccount implements Client.GetAccount
func (c *RESTClient) GetAccount(ctx context.Context, id string) (Identity, error) {
	var identity Identity
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(id), nil, &identity); err != nil {
		return Identity{}, err
	}
	return identity, nil
}

// GetByEmail implements Client.GetByEmail
func (c *RESTClient) GetByEmail(ctx context.Context, email string) (Identity, error) {
	var identity Identity
	path := "/v1/accounts:lookup?email=" + url.QueryEscape(NormalizeEmail(email))
	if err := c.do(ctx, http.MethodGet, path, nil, &identity); err != nil {
		return Identity{}, err
	}
	return identity, nil
}

// VerifyPassword implements Client.VerifyPassword
func (c *RESTClient) VerifyPassword(ctx context.Context, id, password string) error {
	payload := struct {
		Password string `json:"password"`
	}{Password: password}
	return c.do(ctx, http.MethodPost, "/v1/accounts/"+url.PathEscape(id)+"/verify-password", payload, nil)
}

// UpdateAccount implements Client.UpdateAccount
func (c *RESTClient) UpdateAccount(ctx context.Context, id string, params UpdateAccountParams) error {
	payload := struct {
		Email       *string `json:"email,omitempty"`
		DisplayName *string `json:"display_name,omitempty"`
	}{Email: params.Email, DisplayName: params.DisplayName}
	return c.do(ctx, http.MethodPatch, "/v1/accounts/"+url.PathEscape(id), payload, nil)
}

// UpdatePassword implements Client.UpdatePassword
func (c *RESTClient) UpdatePassword(ctx context.Context, id, newPassword string) error {
	payload := struct {
		Password string `json:"password"`
	}{Password: newPassword}
	return c.do(ctx, http.MethodPut, "/v1/accounts/"+url.PathEscape(id)+"/password", payload, nil)
}

// BumpRevocationEpoch implements Client.BumpRevocationEpoch
func (c *RESTClient) BumpRevocationEpoch(ctx context.Context, id string) (int64, error) {
	var result struct {
		RevocationEpoch int64 `json:"revocation_epoch"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/accounts/"+url.PathEscape(id)+"/revoke", nil, &result); err != nil {
		return 0, err
	}
	return result.RevocationEpoch, nil
}

// DeleteAccount implements Client.DeleteAccount
func (c *RESTClient) DeleteAccount(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/accounts/"+url.PathEscape(id), nil, nil)
}

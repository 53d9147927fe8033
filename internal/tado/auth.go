package tado

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hvac-bridge/internal/hvac"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// getAccessToken returns a valid access token, refreshing through the
// cross-process lock when the in-memory one has expired. Refresh tokens
// are single-use: a concurrent refresh with the same token would strand
// the account, so all refreshers across all instances are serialized.
func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		token := c.accessToken
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	if c.simMode {
		c.logger.Info("[sim] refreshing tado access token")
		c.setAccessToken("sim-access-token")
		return "sim-access-token", nil
	}

	lock, err := c.store.AcquireLock(ctx, refreshLockName)
	if err != nil {
		// no safe way to refresh without the lock
		return "", fmt.Errorf("token refresh: %w", err)
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			c.logger.Warn("failed to release refresh lock", "err", err)
		}
	}()

	refreshToken, err := c.store.GetSecret(ctx, refreshTokenKey)
	if err != nil {
		return "", fmt.Errorf("read refresh token: %w", err)
	}
	if refreshToken == "" {
		return "", &hvac.Error{Kind: hvac.KindUnauthenticated, Message: "no refresh token stored; run the device-code flow first"}
	}

	grant, err := c.requestToken(ctx, url.Values{
		"client_id":     {clientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}

	// The old refresh token is now invalid provider-side. Persist the
	// new one before the lock is released and before any caller sees
	// the access token; failing here must fail the whole operation.
	if err = c.store.SetSecret(ctx, refreshTokenKey, grant.RefreshToken); err != nil {
		return "", fmt.Errorf("persist rotated refresh token: %w", err)
	}

	c.setAccessToken(grant.AccessToken)
	c.logger.Info("tado access token refreshed")
	return grant.AccessToken, nil
}

func (c *Client) setAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
	c.tokenExpiry = time.Now().Add(accessTokenTTL)
}

func (c *Client) clearAccessToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.tokenExpiry = time.Time{}
}

func (c *Client) requestToken(ctx context.Context, form url.Values) (tokenResponse, error) {
	var grant tokenResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return grant, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return grant, &hvac.Error{Kind: hvac.KindTransient, Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		msg := readError(resp)
		return grant, &hvac.Error{Kind: hvac.KindUnauthenticated, Status: resp.StatusCode, Message: msg}
	}
	if err = json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		drain(resp)
		return grant, &hvac.Error{Kind: hvac.KindProtocol, Message: "decode token response: " + err.Error()}
	}
	_ = resp.Body.Close()
	return grant, nil
}

// DeviceAuthorization is the user-facing half of the device-code flow.
type DeviceAuthorization struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// TokenPair is the result of a completed device-code flow.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// StartOAuthFlow initiates the one-time device-code flow. The returned
// user code and verification URI are shown to the operator. Unlike the
// capability methods, the bootstrap pair propagates errors: the caller
// is an interactive setup endpoint that surfaces them to a human.
func (c *Client) StartOAuthFlow(ctx context.Context) (DeviceAuthorization, error) {
	var auth DeviceAuthorization

	if c.simMode {
		c.logger.Info("[sim] starting tado oauth flow")
		return DeviceAuthorization{
			DeviceCode:              "sim-device-code",
			UserCode:                "SIM-CODE",
			VerificationURIComplete: "https://login.tado.com/sim",
		}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL+"/device_authorize",
		strings.NewReader(url.Values{"client_id": {clientID}}.Encode()))
	if err != nil {
		return auth, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return auth, fmt.Errorf("device authorization: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return auth, fmt.Errorf("device authorization: unexpected status %d", resp.StatusCode)
	}
	if err = json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return auth, fmt.Errorf("device authorization: %w", err)
	}
	return auth, nil
}

// PollOAuthCompletion checks whether the operator has approved the
// device code. It returns (nil, nil) while authorization is pending, the
// token pair once approved (with the refresh token already persisted),
// and an error when the code expired or access was denied.
func (c *Client) PollOAuthCompletion(ctx context.Context, deviceCode string) (*TokenPair, error) {
	if c.simMode {
		c.logger.Info("[sim] polling tado oauth completion")
		return &TokenPair{AccessToken: "sim-access-token", RefreshToken: "sim-refresh-token"}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL+"/token",
		strings.NewReader(url.Values{
			"client_id":   {clientID},
			"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
			"device_code": {deviceCode},
		}.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauth poll: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusBadRequest {
		var oauthErr struct {
			Error string `json:"error"`
		}
		if err = json.NewDecoder(resp.Body).Decode(&oauthErr); err != nil {
			return nil, fmt.Errorf("oauth poll: %w", err)
		}
		if oauthErr.Error == "authorization_pending" {
			return nil, nil
		}
		return nil, fmt.Errorf("oauth flow failed: %s", oauthErr.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oauth poll: unexpected status %d", resp.StatusCode)
	}

	var grant tokenResponse
	if err = json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return nil, fmt.Errorf("oauth poll: %w", err)
	}

	if err = c.store.SetSecret(ctx, refreshTokenKey, grant.RefreshToken); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}
	c.setAccessToken(grant.AccessToken)

	c.logger.Info("tado device-code flow completed")
	return &TokenPair{AccessToken: grant.AccessToken, RefreshToken: grant.RefreshToken}, nil
}

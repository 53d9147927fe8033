// Package melcloud implements the air-conditioning provider client.
//
// MELCloud authenticates with a session token (ContextKey) and its
// control protocol is a partial update: every SetAta call carries an
// EffectiveFlags bitmap naming exactly the fields being changed, and
// the provider silently ignores any field not flagged.
package melcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"hvac-bridge/internal/hvac"
	"hvac-bridge/internal/store"
)

var _ hvac.Device = &Client{}

const (
	defaultBaseURL = "https://app.melcloud.com/Mitsubishi.Wifi.Client"
	appVersion     = "1.32.1.0"

	deviceListTTL  = time.Hour
	deviceStateTTL = time.Minute

	contextKeySecret = "melcloud_context_key"

	// the only supported device type: single-split air-to-air units
	deviceTypeAirToAir = 0
)

type Client struct {
	baseURL  string
	email    string
	password string
	simMode  bool
	store    *store.Store
	http     *http.Client
	logger   *slog.Logger

	mu         sync.Mutex
	contextKey string
}

// New returns a MELCloud client. httpClient may be nil; pass one
// wrapping transport.New to get call metrics.
func New(email, password string, simMode bool, s *store.Store, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:  defaultBaseURL,
		email:    email,
		password: password,
		simMode:  simMode,
		store:    s,
		http:     httpClient,
		logger:   logger,
	}
}

type loginResponse struct {
	ErrorID   *int `json:"ErrorId"`
	LoginData *struct {
		ContextKey string `json:"ContextKey"`
	} `json:"LoginData"`
}

// getSessionToken returns the session token, logging in when none is
// held. The token has no fixed expiry; it is cleared reactively on 401.
func (c *Client) getSessionToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.contextKey != "" {
		token := c.contextKey
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	if c.simMode {
		c.logger.Info("[sim] logging into melcloud")
		c.mu.Lock()
		c.contextKey = "sim-context-key"
		c.mu.Unlock()
		return "sim-context-key", nil
	}

	body, err := json.Marshal(map[string]string{
		"Email":      c.email,
		"Password":   c.password,
		"AppVersion": appVersion,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/Login/ClientLogin", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &hvac.Error{Kind: hvac.KindTransient, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", &hvac.Error{Kind: hvac.KindUnauthenticated, Status: resp.StatusCode, Message: "login failed"}
	}

	var login loginResponse
	if err = json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return "", &hvac.Error{Kind: hvac.KindProtocol, Message: "decode login response: " + err.Error()}
	}
	if login.LoginData == nil || login.LoginData.ContextKey == "" {
		// MELCloud reports bad credentials with a 200 and a null LoginData
		return "", &hvac.Error{Kind: hvac.KindUnauthenticated, Message: "login rejected"}
	}

	token := login.LoginData.ContextKey
	c.mu.Lock()
	c.contextKey = token
	c.mu.Unlock()

	// advisory write only: a fresh login always supersedes the stored
	// key, so a write failure is not fatal
	if err = c.store.SetSecret(ctx, contextKeySecret, token); err != nil {
		c.logger.Warn("failed to persist melcloud session token", "err", err)
	}

	c.logger.Info("melcloud authentication successful")
	return token, nil
}

func (c *Client) clearSessionToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contextKey = ""
}

// call issues one authenticated API call. A 401 clears the session
// token and retries once with a fresh login; all other failures
// propagate immediately (this provider's rate limiting is permissive,
// so no backoff tier).
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var retried bool

	for {
		token, err := c.getSessionToken(ctx)
		if err != nil {
			return err
		}

		var reader io.Reader
		if body != nil {
			buf, err := json.Marshal(body)
			if err != nil {
				return err
			}
			reader = bytes.NewReader(buf)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("X-MitsContextKey", token)

		resp, err := c.http.Do(req)
		if err != nil {
			return &hvac.Error{Kind: hvac.KindTransient, Message: err.Error()}
		}

		switch {
		case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
			defer func() { _ = resp.Body.Close() }()
			if out == nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				return nil
			}
			if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
				return &hvac.Error{Kind: hvac.KindProtocol, Message: "decode response: " + err.Error()}
			}
			return nil

		case resp.StatusCode == http.StatusUnauthorized:
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if retried {
				return &hvac.Error{Kind: hvac.KindAuthExpired, Status: resp.StatusCode, Message: "session rejected after re-login"}
			}
			c.logger.Warn("melcloud session expired, re-authenticating")
			c.clearSessionToken()
			retried = true

		case resp.StatusCode == http.StatusTooManyRequests:
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			c.logger.Error("melcloud rate limited", "path", path)
			return &hvac.Error{Kind: hvac.KindRateLimited, Status: resp.StatusCode, Message: "rate limited"}

		case resp.StatusCode >= http.StatusInternalServerError:
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			return &hvac.Error{Kind: hvac.KindTransient, Status: resp.StatusCode, Message: "server error"}

		default:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			_ = resp.Body.Close()
			return &hvac.Error{Kind: hvac.KindProtocol, Status: resp.StatusCode, Message: string(msg)}
		}
	}
}

func fmtDevicePath(deviceID, buildingID int) string {
	return fmt.Sprintf("/Device/Get?id=%d&buildingID=%d", deviceID, buildingID)
}

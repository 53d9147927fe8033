// Package tado implements the radiator thermostat provider client.
//
// Tadoº rotates refresh tokens on every use: refreshing with a stale
// token invalidates the session for every other holder, and its rate
// limiting penalizes violators with multi-day lockouts. The client
// therefore serializes token refresh through a cross-process lock,
// caches discovery responses in the shared store, and never retries a
// rate-limited call.
package tado

import (
	"bytes"
	"context"
	"encoding/json"
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
	defaultBaseURL = "https://my.tado.com/api/v2"
	defaultAuthURL = "https://login.tado.com/oauth2"

	// public Tado client id for the device-code flow
	clientID = "1bb50063-6b0c-4d11-bd99-387f4a91cc46"

	accessTokenTTL = 10 * time.Minute
	zoneListTTL    = time.Hour
	zoneStateTTL   = 2 * time.Minute

	// provider-enforced minimum overlay duration
	minOverlaySeconds = 900

	maxRetries        = 2
	defaultBackoff    = 100 * time.Millisecond
	backoffMultiplier = 5

	refreshTokenKey = "tado_refresh_token"
	refreshLockName = "tado_token_refresh"
)

type Client struct {
	baseURL string
	authURL string
	homeID  string
	simMode bool
	store   *store.Store
	http    *http.Client
	logger  *slog.Logger
	backoff time.Duration

	// L1 in front of the persisted credential; never written to disk
	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New returns a Tado client for the given home. httpClient may be nil;
// pass one wrapping transport.New to get call metrics. With simMode set
// every method returns deterministic canned data and no network call is
// ever made.
func New(homeID string, simMode bool, s *store.Store, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: defaultBaseURL,
		authURL: defaultAuthURL,
		homeID:  homeID,
		simMode: simMode,
		store:   s,
		http:    httpClient,
		logger:  logger,
		backoff: defaultBackoff,
	}
}

// call issues one authenticated API call with the tiered retry policy:
// a 401 clears the cached access token and forces one refresh; a 429
// fails immediately; transport errors and 5xx are retried up to
// maxRetries times with exponential backoff; any other non-2xx status
// is a hard failure.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var (
		refreshed        bool
		transientRetries int
	)
	backoff := c.backoff

	for {
		token, err := c.getAccessToken(ctx)
		if err != nil {
			return err
		}

		req, err := newRequest(ctx, method, c.baseURL+path, body)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.http.Do(req)
		if err != nil {
			if transientRetries < maxRetries {
				c.logger.Warn("tado call failed, retrying", "err", err, "backoff", backoff)
				if err = sleep(ctx, backoff); err != nil {
					return err
				}
				backoff *= backoffMultiplier
				transientRetries++
				continue
			}
			return &hvac.Error{Kind: hvac.KindTransient, Message: err.Error()}
		}

		switch {
		case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
			err = decodeBody(resp, out)
			return err

		case resp.StatusCode == http.StatusUnauthorized:
			drain(resp)
			if refreshed {
				return &hvac.Error{Kind: hvac.KindAuthExpired, Status: resp.StatusCode, Message: "credentials rejected after forced refresh"}
			}
			c.logger.Warn("tado returned 401, forcing token refresh")
			c.clearAccessToken()
			refreshed = true

		case resp.StatusCode == http.StatusTooManyRequests:
			drain(resp)
			// never retry: the penalty for hammering the rate limit is
			// a multi-day lockout
			c.logger.Error("tado rate limited", "path", path)
			return &hvac.Error{Kind: hvac.KindRateLimited, Status: resp.StatusCode, Message: "rate limited"}

		case resp.StatusCode >= http.StatusInternalServerError:
			drain(resp)
			if transientRetries >= maxRetries {
				return &hvac.Error{Kind: hvac.KindTransient, Status: resp.StatusCode, Message: "retries exhausted"}
			}
			c.logger.Warn("tado server error, retrying", "status", resp.StatusCode, "backoff", backoff)
			if err = sleep(ctx, backoff); err != nil {
				return err
			}
			backoff *= backoffMultiplier
			transientRetries++

		default:
			msg := readError(resp)
			return &hvac.Error{Kind: hvac.KindProtocol, Status: resp.StatusCode, Message: msg}
		}
	}
}

func newRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func decodeBody(resp *http.Response, out any) error {
	defer func() { _ = resp.Body.Close() }()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &hvac.Error{Kind: hvac.KindProtocol, Message: "decode response: " + err.Error()}
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func readError(resp *http.Response) string {
	defer func() { _ = resp.Body.Close() }()
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if len(buf) == 0 {
		return resp.Status
	}
	return string(buf)
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

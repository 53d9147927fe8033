// Package weather reads the current outdoor temperature from Open-Meteo.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	defaultBaseURL = "https://api.open-meteo.com/v1/forecast"
	cacheTTL       = 10 * time.Minute
)

// Client caches the last reading in memory: a single scalar with a
// short lifetime does not earn a row in the shared store.
type Client struct {
	baseURL   string
	latitude  float64
	longitude float64
	simMode   bool
	http      *http.Client
	logger    *slog.Logger

	mu        sync.Mutex
	lastTemp  float64
	fetchedAt time.Time
}

func New(latitude, longitude float64, simMode bool, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:   defaultBaseURL,
		latitude:  latitude,
		longitude: longitude,
		simMode:   simMode,
		http:      httpClient,
		logger:    logger,
	}
}

type forecastResponse struct {
	Current *struct {
		Temperature float64 `json:"temperature_2m"`
	} `json:"current"`
}

// GetOutdoorTemperature returns the current outdoor temperature in
// Celsius. It never returns an error: callers that can live without the
// reading get (0, false) and the cause lands in the log.
func (c *Client) GetOutdoorTemperature(ctx context.Context) (float64, bool) {
	if c.simMode {
		return 12.0, true
	}

	c.mu.Lock()
	if time.Since(c.fetchedAt) < cacheTTL {
		temp := c.lastTemp
		c.mu.Unlock()
		return temp, true
	}
	c.mu.Unlock()

	temp, err := c.fetch(ctx)
	if err != nil {
		c.logger.Error("failed to get outdoor temperature", "err", err)
		return 0, false
	}

	c.mu.Lock()
	c.lastTemp = temp
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return temp, true
}

func (c *Client) fetch(ctx context.Context) (float64, error) {
	url := fmt.Sprintf("%s?latitude=%.4f&longitude=%.4f&current=temperature_2m", c.baseURL, c.latitude, c.longitude)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("open-meteo: unexpected status %d", resp.StatusCode)
	}

	var forecast forecastResponse
	if err = json.NewDecoder(resp.Body).Decode(&forecast); err != nil {
		return 0, fmt.Errorf("open-meteo: %w", err)
	}
	if forecast.Current == nil {
		return 0, fmt.Errorf("open-meteo: no current weather in response")
	}
	return forecast.Current.Temperature, nil
}

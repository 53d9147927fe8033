package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/homes/42/zones/7/state" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rt := New(nil, "tado")
	registry := prometheus.NewPedanticRegistry()
	registry.MustRegister(rt)

	client := http.Client{Transport: rt}

	resp, err := client.Get(server.URL + "/homes/42/zones")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(server.URL + "/homes/42/zones/7/state")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// ids beyond the third path segment are folded into one series
	assert.Equal(t, 1.0, testutil.ToFloat64(rt.errors.WithLabelValues(http.MethodGet, "/homes/42/zones")))

	count, err := testutil.GatherAndCount(registry)
	require.NoError(t, err)
	assert.NotZero(t, count)
}

func Test_filterPath(t *testing.T) {
	assert.Equal(t, "/homes/42/zones", filterPath("/homes/42/zones/7/overlay"))
	assert.Equal(t, "/Device/Get", filterPath("/Device/Get"))
	assert.Equal(t, "/", filterPath("/"))
}

package homeassistant_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home-voice/config"
	"home-voice/internal/infra/homeassistant"
)

func TestNewExecutor_MissingCredentials(t *testing.T) {
	_, err := homeassistant.NewExecutor(config.HomeAssistantConfig{BaseURL: "http://ha"}, discardLogger())
	assert.ErrorIs(t, err, homeassistant.ErrMissingCredentials)

	_, err = homeassistant.NewExecutor(config.HomeAssistantConfig{Token: "t"}, discardLogger())
	assert.ErrorIs(t, err, homeassistant.ErrMissingCredentials)
}

func TestExecutor_SetsHeaders(t *testing.T) {
	var auth, contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exec := newTestExecutor(t, srv.URL+"/", nil)
	resp, err := exec.Get(context.Background(), "/api/states")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer test-token", auth)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, srv.URL, exec.BaseURL())
}

func TestExecutor_TimeoutRetriesWithBackoff(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-r.Context().Done()
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	sleeper := &recordingSleeper{}
	exec, err := homeassistant.NewExecutor(cfg, discardLogger(), homeassistant.WithSleep(sleeper.Sleep))
	require.NoError(t, err)

	_, err = exec.Get(context.Background(), "/api/states")
	require.Error(t, err)

	assert.EqualValues(t, 3, hits.Load())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.Delays())
	assert.ErrorIs(t, err, homeassistant.ErrRequestFailed)

	var reqErr *homeassistant.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, 3, reqErr.Attempts)
	assert.Contains(t, err.Error(), srv.URL)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestExecutor_ClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "no such service", http.StatusNotFound)
	}))
	defer srv.Close()

	sleeper := &recordingSleeper{}
	exec := newTestExecutor(t, srv.URL, sleeper)

	_, err := exec.Post(context.Background(), "/api/services/light/explode", map[string]any{"entity_id": "light.kitchen"})
	require.Error(t, err)

	assert.EqualValues(t, 1, hits.Load())
	assert.Empty(t, sleeper.Delays())
	assert.NotErrorIs(t, err, homeassistant.ErrRequestFailed)

	var statusErr *homeassistant.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestExecutor_UnauthorizedSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestExecutor(t, srv.URL, nil).Get(context.Background(), "/api/config")
	assert.ErrorIs(t, err, homeassistant.ErrUnauthorized)
}

func TestExecutor_ServerErrorThenSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	sleeper := &recordingSleeper{}
	resp, err := newTestExecutor(t, srv.URL, sleeper).Get(context.Background(), "/api/config")
	require.NoError(t, err)

	assert.EqualValues(t, 2, hits.Load())
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeper.Delays())

	body, err := resp.Decode()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, body)
}

func TestExecutor_ServerErrorExhausts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestExecutor(t, srv.URL, nil).Get(context.Background(), "/api/services")

	assert.EqualValues(t, 3, hits.Load())
	assert.ErrorIs(t, err, homeassistant.ErrRequestFailed)

	var statusErr *homeassistant.StatusError
	assert.True(t, errors.As(err, &statusErr), "last failure should stay reachable")
}

func TestExecutor_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	sleeper := &recordingSleeper{}
	_, err := newTestExecutor(t, url, sleeper).Get(context.Background(), "/api/states")

	assert.ErrorIs(t, err, homeassistant.ErrRequestFailed)
	assert.Len(t, sleeper.Delays(), 2)
}

func TestExecutor_UnsupportedMethod(t *testing.T) {
	exec := newTestExecutor(t, "http://127.0.0.1:1", nil)

	_, err := exec.Do(context.Background(), http.MethodDelete, "/api/states", nil)
	assert.ErrorIs(t, err, homeassistant.ErrUnsupportedMethod)
}

func TestResponse_Decode(t *testing.T) {
	empty := &homeassistant.Response{StatusCode: 200}
	body, err := empty.Decode()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, body)

	broken := &homeassistant.Response{StatusCode: 200, Body: []byte("<html>")}
	_, err = broken.Decode()
	assert.Error(t, err)
}

package httpclient_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-assistant/framework/httpclient"
)

func TestClient_PostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send-text", r.URL.Path)
		assert.Equal(t, "abc", r.Header.Get("Client-Token"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["message"]})
	}))
	defer srv.Close()

	c := httpclient.New(httpclient.Options{
		Name:    "zapi",
		BaseURL: srv.URL + "/",
		Headers: map[string]string{"Client-Token": "abc"},
	})

	var out map[string]string
	require.NoError(t, c.PostJSON(context.Background(), "/send-text", map[string]string{"message": "hi"}, &out))
	assert.Equal(t, "hi", out["echo"])
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := httpclient.New(httpclient.Options{Name: "github", BaseURL: srv.URL}).GetJSON(context.Background(), "/rate_limit", nil)

	var se *httpclient.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Equal(t, "bad credentials", se.Body)
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := httpclient.New(httpclient.Options{Name: "openai", BaseURL: srv.URL, MinRequests: 2, FailureThreshold: 0.5})
	ctx := context.Background()

	require.Error(t, c.GetJSON(ctx, "/models", nil))
	require.Error(t, c.GetJSON(ctx, "/models", nil))
	assert.Equal(t, gobreaker.StateOpen, c.State())

	err := c.GetJSON(ctx, "/models", nil)
	assert.ErrorIs(t, err, httpclient.ErrUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ClientErrorsKeepBreakerClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := httpclient.New(httpclient.Options{Name: "github", BaseURL: srv.URL, MinRequests: 1, FailureThreshold: 0.1})
	for i := 0; i < 3; i++ {
		require.Error(t, c.GetJSON(context.Background(), "/missing", nil))
	}
	assert.Equal(t, gobreaker.StateClosed, c.State())
}

func TestClient_DoCopiesIntoWriter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OggS raw bytes"))
	}))
	defer srv.Close()

	c := httpclient.New(httpclient.Options{Name: "download"})
	req, err := c.NewRequest(context.Background(), http.MethodGet, srv.URL+"/voice.ogg", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.Do(req, &buf))
	assert.Equal(t, "OggS raw bytes", buf.String())
}

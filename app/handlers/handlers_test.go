package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/km-arc/go-assistant/app/handlers"
	"github.com/km-arc/go-assistant/app/services/messaging"
	"github.com/km-arc/go-assistant/framework/events"
	"github.com/km-arc/go-assistant/framework/exceptions"
	"github.com/km-arc/go-assistant/framework/health"
	"github.com/km-arc/go-assistant/routing"
)

// ── Health ────────────────────────────────────────────────────────────────────

type reporter struct {
	summary  health.Summary
	last     health.Summary
	disabled map[string]string
}

func (r reporter) HealthCheck(context.Context) health.Summary { return r.summary }
func (r reporter) LastHealth() health.Summary                 { return r.last }
func (r reporter) Disabled() map[string]string                { return r.disabled }

func getHealth(t *testing.T, r reporter) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	handlers.Health(r).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHealth_AllHealthy(t *testing.T) {
	w, body := getHealth(t, reporter{
		summary:  health.Summary{"github": {Healthy: true, Detail: "ok"}},
		disabled: map[string]string{"notes": "missing configuration: NOTES_TABLE"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["healthy"])
	assert.Contains(t, body["disabled"], "notes")
	assert.Contains(t, body["services"], "github")
}

func TestHealth_FailingProbeIs503(t *testing.T) {
	w, body := getHealth(t, reporter{
		summary: health.Summary{"messaging": {Healthy: false, Detail: "timed out"}},
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, false, body["healthy"])
}

func TestHealth_NoServices(t *testing.T) {
	w, body := getHealth(t, reporter{})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{}, body["services"])
}

func TestHealth_CachedUsesLastPass(t *testing.T) {
	r := reporter{
		summary: health.Summary{"github": {Healthy: true}},
		last:    health.Summary{"github": {Healthy: false, Detail: "rate limited"}},
	}
	w := httptest.NewRecorder()
	handlers.Health(r).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health?cached=true", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "rate limited")
}

func getService(r reporter, name string) *httptest.ResponseRecorder {
	router := routing.New(nil)
	router.Get("/health/{service}", handlers.HealthService(r))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/"+name, nil))
	return w
}

func TestHealthService(t *testing.T) {
	r := reporter{
		summary: health.Summary{
			"github":    {Healthy: true, Detail: "ok"},
			"messaging": {Healthy: false, Detail: "instance disconnected"},
		},
		disabled: map[string]string{"notes": "missing configuration: NOTES_TABLE"},
	}

	cases := []struct {
		name     string
		status   int
		contains string
	}{
		{"github", http.StatusOK, `"detail":"ok"`},
		{"messaging", http.StatusServiceUnavailable, "instance disconnected"},
		{"notes", http.StatusServiceUnavailable, "NOTES_TABLE"},
		{"nope", http.StatusNotFound, "Unknown service."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := getService(r, tc.name)
			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.contains)
		})
	}
}

// ── Webhook ───────────────────────────────────────────────────────────────────

const secret = "zapi-secret"

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	return postWith(h, body, func(r *http.Request) { r.Header.Set(handlers.TokenHeader, secret) })
}

func postWith(h http.Handler, body string, prepare func(*http.Request)) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/webhooks/messages", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	prepare(r)
	h.ServeHTTP(w, r)
	return w
}

func webhook(bus *events.Bus) *handlers.Webhook {
	return handlers.NewWebhook(bus, exceptions.NewHandler(zap.NewNop(), false), secret, nil)
}

const validPayload = `{"type":"ReceivedCallback","messageId":"abc","phone":"5511","text":{"message":"/help"}}`

func TestWebhook_RequiresToken(t *testing.T) {
	bus := events.NewBus(nil)
	published := false
	bus.Subscribe(events.Wildcard, func(context.Context, events.Event) error {
		published = true
		return nil
	})

	cases := []struct {
		name    string
		handler *handlers.Webhook
		prepare func(*http.Request)
		status  int
	}{
		{"missing", webhook(bus), func(*http.Request) {}, http.StatusUnauthorized},
		{"wrong", webhook(bus), func(r *http.Request) { r.Header.Set(handlers.TokenHeader, "guess") }, http.StatusUnauthorized},
		{"bearer", webhook(bus), func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+secret) }, http.StatusAccepted},
		{"unconfigured", handlers.NewWebhook(bus, exceptions.NewHandler(nil, false), "", nil),
			func(r *http.Request) { r.Header.Set(handlers.TokenHeader, "") }, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			published = false
			w := postWith(tc.handler, validPayload, tc.prepare)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.status == http.StatusAccepted, published)
		})
	}
}

func TestWebhook_PublishesInbound(t *testing.T) {
	bus := events.NewBus(nil)
	var got messaging.Inbound
	bus.Subscribe(messaging.EventReceived, func(_ context.Context, e events.Event) error {
		got = e.Payload.(messaging.Inbound)
		return nil
	})

	w := post(webhook(bus), `{"type":"ReceivedCallback","messageId":"abc","phone":"5511999990000","momment":1700000000000,"text":{"message":"/help"}}`)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "abc", got.MessageID)
	assert.Equal(t, "/help", got.Text)
}

func TestWebhook_InvalidPayloadIs422(t *testing.T) {
	w := post(webhook(events.NewBus(nil)), `{"type":"ReceivedCallback","phone":"not-a-number"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errs := body["errors"].(map[string]any)
	assert.Contains(t, errs, "messageId")
	assert.Contains(t, errs, "phone")
}

func TestWebhook_MalformedJSONIs400(t *testing.T) {
	w := post(webhook(events.NewBus(nil)), `{`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_OwnMessagesAreIgnored(t *testing.T) {
	bus := events.NewBus(nil)
	published := false
	bus.Subscribe(events.Wildcard, func(context.Context, events.Event) error {
		published = true
		return nil
	})

	w := post(webhook(bus), `{"type":"ReceivedCallback","messageId":"abc","phone":"5511","fromMe":true}`)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"ignored":true`)
	assert.False(t, published)
}

func TestWebhook_ListenerFailureStillAccepted(t *testing.T) {
	bus := events.NewBus(nil)
	bus.Subscribe(messaging.EventReceived, func(context.Context, events.Event) error {
		return errors.New("reply failed")
	})

	w := post(webhook(bus), `{"type":"ReceivedCallback","messageId":"abc","phone":"5511","text":{"message":"hi"}}`)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

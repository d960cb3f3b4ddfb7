package handlers

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"

	"github.com/km-arc/go-assistant/app/services/messaging"
	"github.com/km-arc/go-assistant/framework/events"
	"github.com/km-arc/go-assistant/framework/exceptions"
	gohttp "github.com/km-arc/go-assistant/framework/http"
)

// TokenHeader carries the Z-API account token on webhook callbacks.
const TokenHeader = "Client-Token"

// Webhook receives Z-API callbacks on POST /webhooks/messages.
type Webhook struct {
	bus        *events.Bus
	exceptions *exceptions.Handler
	token      string
	logger     *zap.Logger
}

// NewWebhook creates the webhook handler. Callbacks must present token in
// the Client-Token header or as a bearer token; with an empty token every
// callback is rejected.
func NewWebhook(bus *events.Bus, exc *exceptions.Handler, token string, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Webhook{bus: bus, exceptions: exc, token: token, logger: logger}
}

// ServeHTTP validates the payload and publishes inbound direct messages
// as message.received. Listener failures are reported and the callback is
// still acknowledged with 202.
func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := gohttp.NewRequest(r)
	res := gohttp.NewResponse(w)

	if !h.authorized(req) {
		h.logger.Warn("webhook rejected", zap.String("remote", req.Raw().RemoteAddr))
		res.Unauthorized()
		return
	}

	var payload messaging.Webhook
	if err := req.Bind(&payload); err != nil {
		res.Error(http.StatusBadRequest, err.Error())
		return
	}
	if err := payload.Validate(); err != nil {
		h.exceptions.Render(res.Raw(), err)
		return
	}
	if !payload.Actionable() {
		res.Accepted(map[string]any{"id": payload.MessageID, "ignored": true})
		return
	}

	event := events.New(messaging.EventReceived, payload.Inbound())
	if err := h.bus.Publish(req.Raw().Context(), event); err != nil {
		h.exceptions.Report(err)
	}
	h.logger.Debug("webhook accepted",
		zap.String("message_id", payload.MessageID),
		zap.String("event_id", event.ID))
	res.Accepted(map[string]any{"id": event.ID})
}

func (h *Webhook) authorized(req *gohttp.Request) bool {
	if h.token == "" {
		return false
	}
	got := req.Header(TokenHeader)
	if got == "" {
		got = req.BearerToken()
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

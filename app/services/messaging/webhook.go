package messaging

import (
	"strings"
	"time"

	"github.com/km-arc/go-assistant/framework/validation"
)

// ReceivedCallback is the webhook type for inbound messages.
const ReceivedCallback = "ReceivedCallback"

// Webhook is the subset of the Z-API on-message-received payload in use.
type Webhook struct {
	Type       string `json:"type"`
	MessageID  string `json:"messageId"`
	Phone      string `json:"phone"`
	FromMe     bool   `json:"fromMe"`
	IsGroup    bool   `json:"isGroup"`
	Moment     int64  `json:"momment"`
	SenderName string `json:"senderName"`
	Text       *struct {
		Message string `json:"message"`
	} `json:"text,omitempty"`
	Audio *struct {
		AudioURL string `json:"audioUrl"`
		MimeType string `json:"mimeType"`
	} `json:"audio,omitempty"`
}

// Inbound is a received message as the rest of the application sees it.
type Inbound struct {
	MessageID  string    `json:"messageId"`
	Phone      string    `json:"phone"`
	SenderName string    `json:"senderName,omitempty"`
	FromMe     bool      `json:"fromMe"`
	Text       string    `json:"text,omitempty"`
	AudioURL   string    `json:"audioUrl,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Validate checks the fields every inbound message needs.
func (w *Webhook) Validate() error {
	return validation.Make(map[string]string{
		"type":      w.Type,
		"messageId": w.MessageID,
		"phone":     w.Phone,
	}, validation.Rules{
		"type":      "required",
		"messageId": "required",
		"phone":     "required|numeric",
	}).Err()
}

// Actionable reports whether the webhook is an inbound direct message.
func (w *Webhook) Actionable() bool {
	return w.Type == ReceivedCallback && !w.FromMe && !w.IsGroup
}

// Inbound converts the payload. Moment is in milliseconds.
func (w *Webhook) Inbound() Inbound {
	in := Inbound{
		MessageID:  w.MessageID,
		Phone:      w.Phone,
		SenderName: w.SenderName,
		FromMe:     w.FromMe,
		ReceivedAt: time.UnixMilli(w.Moment).UTC(),
	}
	if w.Moment == 0 {
		in.ReceivedAt = time.Now().UTC()
	}
	if w.Text != nil {
		in.Text = strings.TrimSpace(w.Text.Message)
	}
	if w.Audio != nil {
		in.AudioURL = w.Audio.AudioURL
	}
	return in
}

// EventReceived is published on the bus with an Inbound payload.
const EventReceived = "message.received"

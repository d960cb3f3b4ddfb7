// Package messaging talks to the Z-API WhatsApp gateway: it sends replies
// and turns inbound webhooks into Inbound messages.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/km-arc/go-assistant/framework/config"
	"github.com/km-arc/go-assistant/framework/container"
	"github.com/km-arc/go-assistant/framework/httpclient"
)

// Token is the container token of the *Client.
var Token = container.TypeOf[*Client]()

// Client sends messages through one Z-API instance.
type Client struct {
	http       *httpclient.Client
	ownerPhone string
	logger     *zap.Logger
}

// NewClient builds a client for the instance in cfg. The Client-Token header
// carries the account security token, falling back to the client token.
func NewClient(cfg config.MessagingConfig, logger *zap.Logger) (*Client, error) {
	if cfg.InstanceID == "" || cfg.InstanceToken == "" {
		return nil, errors.New("messaging: instance id and token are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base := fmt.Sprintf("%s/instances/%s/token/%s",
		strings.TrimRight(cfg.BaseURL, "/"), cfg.InstanceID, cfg.InstanceToken)

	return &Client{
		http: httpclient.New(httpclient.Options{
			Name:    "zapi",
			BaseURL: base,
			Headers: map[string]string{"Client-Token": cfg.Token()},
			Logger:  logger,
		}),
		ownerPhone: cfg.OwnerPhone,
		logger:     logger,
	}, nil
}

// OwnerPhone is the number the assistant works for.
func (c *Client) OwnerPhone() string { return c.ownerPhone }

type sendTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type sendTextResponse struct {
	ZaapID    string `json:"zaapId"`
	MessageID string `json:"messageId"`
}

// SendText sends message to phone and returns the gateway message ID.
func (c *Client) SendText(ctx context.Context, phone, message string) (string, error) {
	var out sendTextResponse
	if err := c.http.PostJSON(ctx, "/send-text", sendTextRequest{Phone: phone, Message: message}, &out); err != nil {
		return "", fmt.Errorf("send text: %w", err)
	}
	c.logger.Debug("message sent", zap.String("message_id", out.MessageID))
	return out.MessageID, nil
}

// Notify sends message to the owner.
func (c *Client) Notify(ctx context.Context, message string) (string, error) {
	return c.SendText(ctx, c.ownerPhone, message)
}

type statusResponse struct {
	Connected           bool   `json:"connected"`
	SmartphoneConnected bool   `json:"smartphoneConnected"`
	Error               string `json:"error"`
}

// HealthCheck reports the instance connection state.
func (c *Client) HealthCheck(ctx context.Context) error {
	var st statusResponse
	if err := c.http.GetJSON(ctx, "/status", &st); err != nil {
		return err
	}
	if !st.Connected {
		if st.Error != "" {
			return fmt.Errorf("instance disconnected: %s", st.Error)
		}
		return errors.New("instance disconnected")
	}
	return nil
}

// Package transcription turns voice notes into text with the OpenAI audio
// API.
package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"

	"go.uber.org/zap"

	"github.com/km-arc/go-assistant/framework/config"
	"github.com/km-arc/go-assistant/framework/container"
	"github.com/km-arc/go-assistant/framework/httpclient"
)

// Token is the container token of the *Client.
var Token = container.TypeOf[*Client]()

const maxAudioBytes = 25 << 20 // API upload limit

// Client transcribes audio.
type Client struct {
	api      *httpclient.Client
	download *httpclient.Client
	model    string
	logger   *zap.Logger
}

// NewClient creates a client authenticated with cfg.APIKey.
func NewClient(cfg config.TranscriptionConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("transcription: api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	return &Client{
		api: httpclient.New(httpclient.Options{
			Name:    "openai",
			BaseURL: cfg.BaseURL,
			Headers: map[string]string{"Authorization": "Bearer " + cfg.APIKey},
			Logger:  logger,
		}),
		download: httpclient.New(httpclient.Options{Name: "audio-download", Logger: logger}),
		model:    model,
		logger:   logger,
	}, nil
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads audio under filename and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", c.model); err != nil {
		return "", err
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(part, io.LimitReader(audio, maxAudioBytes+1))
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if n > maxAudioBytes {
		return "", fmt.Errorf("audio exceeds %d bytes", maxAudioBytes)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := c.api.NewRequest(ctx, http.MethodPost, "/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out transcriptionResponse
	if err := c.api.Do(req, &out); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	c.logger.Debug("audio transcribed", zap.Int64("bytes", n), zap.Int("chars", len(out.Text)))
	return out.Text, nil
}

// TranscribeURL downloads the audio at url and transcribes it.
func (c *Client) TranscribeURL(ctx context.Context, url string) (string, error) {
	req, err := c.download.NewRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Del("Accept")

	var buf bytes.Buffer
	if err := c.download.Do(req, &buf); err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}
	name := path.Base(req.URL.Path)
	if name == "" || name == "/" || name == "." {
		name = "audio.ogg"
	}
	return c.Transcribe(ctx, &buf, name)
}

// HealthCheck verifies the key by listing models.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.api.GetJSON(ctx, "/models", nil)
}

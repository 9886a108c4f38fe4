package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	apiKeyHeader         = "D360-Api-Key"
	idempotencyKeyHeader = "Idempotency-Key"

	// maxResponseBytes bounds upstream response bodies.
	maxResponseBytes = 1 << 20
)

// Client calls the upstream WhatsApp Business API. Stateless and safe for
// concurrent use; the tenant bot token is a per-call parameter because every
// business account authenticates with its own key.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client for the given API base URL.
func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("client", "whatsapp")),
	}
}

// SendText submits a text message. The idempotency key makes upstream
// retries safe: replays with the same key are deduplicated by the API.
func (c *Client) SendText(ctx context.Context, botToken string, msg TextMessage, idempotencyKey string) (SendResponse, error) {
	msg.Type = "text"
	return c.send(ctx, botToken, msg, idempotencyKey)
}

// SendTemplate submits an hsm template message.
func (c *Client) SendTemplate(ctx context.Context, botToken string, msg TemplateMessage, idempotencyKey string) (SendResponse, error) {
	msg.Type = "hsm"
	return c.send(ctx, botToken, msg, idempotencyKey)
}

func (c *Client) send(ctx context.Context, botToken string, payload any, idempotencyKey string) (SendResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return SendResponse{}, fmt.Errorf("marshal message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return SendResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, botToken)
	if idempotencyKey != "" {
		req.Header.Set(idempotencyKeyHeader, idempotencyKey)
	}

	var resp SendResponse
	if err := c.do(req, &resp); err != nil {
		return SendResponse{}, err
	}
	return resp, nil
}

// ListTemplates fetches the template catalog for the tenant.
func (c *Client) ListTemplates(ctx context.Context, botToken string) ([]Template, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/configs/templates", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, botToken)

	var resp templatesResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.WabaTemplates, nil
}

// DownloadMedia streams the bytes of an inbound media attachment. The
// caller owns the returned reader and must close it; maxBytes bounds the
// read to protect against oversized assets.
func (c *Client) DownloadMedia(ctx context.Context, botToken, mediaID string, maxBytes int64) (io.ReadCloser, string, error) {
	if strings.TrimSpace(mediaID) == "" {
		return nil, "", fmt.Errorf("media id is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/media/"+mediaID, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, botToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		return nil, "", &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	contentType := resp.Header.Get("Content-Type")
	if maxBytes > 0 {
		return &limitedReadCloser{r: io.LimitReader(resp.Body, maxBytes+1), c: resp.Body}, contentType, nil
	}
	return resp.Body, contentType, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call upstream: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error               { return l.c.Close() }

// Package whatsapp implements the WhatsApp Cloud API messaging client.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/devLink-Developer/chatbot-camping/internal/core"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
	"github.com/devLink-Developer/chatbot-camping/internal/service"
)

const defaultTimeout = 15 * time.Second

// ClientOptions groups dependencies for Client.
type ClientOptions struct {
	Accounts   *service.AccountService // Required: credential resolution
	HTTPClient *http.Client            // Optional: override transport
	Logger     *slog.Logger            // Optional: structured logger
}

// Client sends messages through the WhatsApp Cloud API. Credentials come
// from the account service on every call so an operator swapping the active
// account takes effect without a restart.
type Client struct {
	accounts *service.AccountService
	http     *http.Client
	logger   *slog.Logger
}

var _ core.MessagingClient = (*Client)(nil)

// NewClient constructs a new Client.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Accounts == nil {
		return nil, errors.New("AccountService is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "whatsapp_client")
	}
	return &Client{accounts: opts.Accounts, http: httpClient, logger: logger}, nil
}

// SendText sends a plain text message, optionally quoting the inbound it
// replies to.
func (c *Client) SendText(ctx context.Context, params core.SendTextParams) (*core.SendResult, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                params.To,
		"type":              "text",
		"text": map[string]any{
			"body":        params.Body,
			"preview_url": false,
		},
	}
	if params.ReplyToWAID != "" {
		payload["context"] = map[string]string{"message_id": params.ReplyToWAID}
	}
	return c.postMessage(ctx, payload)
}

// SendInteractive sends one interactive message (reply buttons or a list).
func (c *Client) SendInteractive(ctx context.Context, params core.SendInteractiveParams) (*core.SendResult, error) {
	interactive, err := buildInteractive(params.Payload)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                params.To,
		"type":              "interactive",
		"interactive":       interactive,
	}
	return c.postMessage(ctx, payload)
}

// MarkRead acks an inbound message. With typing set the provider shows a
// typing hint until the reply lands.
func (c *Client) MarkRead(ctx context.Context, waMessageID string, typing bool) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        waMessageID,
	}
	if typing {
		payload["typing_indicator"] = map[string]string{"type": "text"}
	}
	_, err := c.post(ctx, payload)
	return err
}

func (c *Client) postMessage(ctx context.Context, payload map[string]any) (*core.SendResult, error) {
	body, err := c.post(ctx, payload)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode send response: %w", err)
	}
	if len(parsed.Messages) == 0 {
		return nil, errors.New("send response carried no message id")
	}
	return &core.SendResult{WAMessageID: parsed.Messages[0].ID}, nil
}

func (c *Client) post(ctx context.Context, payload map[string]any) ([]byte, error) {
	account, err := c.accounts.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", account.APIBase, account.APIVersion, account.PhoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+account.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloud api request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if c.logger != nil {
			c.logger.Warn("cloud api rejected request",
				"status", resp.StatusCode,
				"account", account.Alias)
		}
		return nil, fmt.Errorf("cloud api status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}
	return body, nil
}

// interactiveContent is the shape the content renderer stores in metadata.
type interactiveContent struct {
	Title   string             `json:"title"`
	Options []model.MenuOption `json:"options"`
}

// buildInteractive maps a stored payload onto the provider's interactive
// object: reply buttons for small menus, a list message otherwise.
func buildInteractive(payload model.InteractivePayload) (map[string]any, error) {
	var content interactiveContent
	if err := json.Unmarshal([]byte(payload.Body), &content); err != nil {
		return nil, fmt.Errorf("decode interactive payload: %w", err)
	}

	switch payload.Kind {
	case "button":
		buttons := make([]map[string]any, 0, len(content.Options))
		for _, opt := range content.Options {
			buttons = append(buttons, map[string]any{
				"type": "reply",
				"reply": map[string]string{
					"id":    opt.Key,
					"title": truncate(opt.Label, 20),
				},
			})
		}
		return map[string]any{
			"type":   "button",
			"body":   map[string]string{"text": content.Title},
			"action": map[string]any{"buttons": buttons},
		}, nil

	case "list":
		rows := make([]map[string]any, 0, len(content.Options))
		for _, opt := range content.Options {
			rows = append(rows, map[string]any{
				"id":    opt.Key,
				"title": truncate(opt.Label, 24),
			})
		}
		return map[string]any{
			"type": "list",
			"body": map[string]string{"text": content.Title},
			"action": map[string]any{
				"button": "Ver opciones",
				"sections": []map[string]any{
					{"title": truncate(content.Title, 24), "rows": rows},
				},
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown interactive kind %q", payload.Kind)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package wacloud

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://graph.facebook.com/v19.0"

// Client talks to the WhatsApp Business Cloud API for outbound sends and
// media retrieval. Transient failures retry with backoff here; the
// reconciliation core never retries on its own.
type Client struct {
	http          *resty.Client
	phoneNumberID string
}

func NewClient(accessToken, phoneNumberID string) *Client {
	http := resty.New().
		SetBaseURL(defaultBaseURL).
		SetAuthToken(accessToken).
		SetTimeout(15 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500 || r.StatusCode() == 429
		})

	return &Client{
		http:          http,
		phoneNumberID: phoneNumberID,
	}
}

// Configured reports whether outbound sending is usable.
func (c *Client) Configured() bool {
	return c.phoneNumberID != ""
}

// SendText sends a text message and returns the provider message id.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	req := SendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &TextContent{Body: body},
	}

	var res SendResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&res).
		SetError(&res).
		Post(fmt.Sprintf("/%s/messages", c.phoneNumberID))
	if err != nil {
		return "", fmt.Errorf("whatsapp send failed: %w", err)
	}
	if resp.IsError() {
		if res.Error != nil {
			return "", fmt.Errorf("whatsapp send rejected: %s (code %d)", res.Error.Message, res.Error.Code)
		}
		return "", fmt.Errorf("whatsapp send rejected: status %d", resp.StatusCode())
	}
	if len(res.Messages) == 0 {
		return "", fmt.Errorf("whatsapp send returned no message id")
	}
	return res.Messages[0].ID, nil
}

// DownloadMedia resolves a media id to its temporary URL and fetches the
// bytes. The URL expires quickly, so both calls happen back to back.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	var info mediaInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&info).
		Get("/" + mediaID)
	if err != nil {
		return nil, "", fmt.Errorf("media lookup failed: %w", err)
	}
	if resp.IsError() || info.URL == "" {
		return nil, "", fmt.Errorf("media lookup rejected: status %d", resp.StatusCode())
	}

	data, err := c.http.R().SetContext(ctx).Get(info.URL)
	if err != nil {
		return nil, "", fmt.Errorf("media download failed: %w", err)
	}
	if data.IsError() {
		return nil, "", fmt.Errorf("media download rejected: status %d", data.StatusCode())
	}
	return data.Body(), info.MimeType, nil
}

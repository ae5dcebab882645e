package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-retryablehttp"
)

// Webhook posts markdown messages to a chat robot endpoint. With a secret,
// requests carry a timestamp and an HMAC-SHA256 signature as query params.
type Webhook struct {
	URL    string
	Secret string

	client *retryablehttp.Client
	now    func() time.Time
}

// NewWebhook returns a webhook notifier that retries transient failures.
func NewWebhook(endpoint, secret string, logger *log.Logger) *Webhook {
	if logger == nil {
		logger = log.Default()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = leveledLogger{logger: logger}
	return &Webhook{URL: endpoint, Secret: secret, client: client, now: time.Now}
}

type webhookPayload struct {
	MsgType  string          `json:"msgtype"`
	Markdown webhookMarkdown `json:"markdown"`
}

type webhookMarkdown struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type webhookReply struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (w *Webhook) Notify(ctx context.Context, msg Message) error {
	target, err := w.signedURL()
	if err != nil {
		return err
	}
	body, err := json.Marshal(webhookPayload{
		MsgType:  "markdown",
		Markdown: webhookMarkdown{Title: msg.Title, Text: msg.Text},
	})
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("reading webhook reply: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	var reply webhookReply
	if len(bytes.TrimSpace(raw)) > 0 && json.Unmarshal(raw, &reply) == nil && reply.ErrCode != 0 {
		return fmt.Errorf("webhook rejected message: %d %s", reply.ErrCode, reply.ErrMsg)
	}
	return nil
}

func (w *Webhook) signedURL() (string, error) {
	u, err := url.Parse(w.URL)
	if err != nil {
		return "", fmt.Errorf("parsing webhook url: %w", err)
	}
	if w.Secret == "" {
		return u.String(), nil
	}
	ts := strconv.FormatInt(w.now().UnixMilli(), 10)
	q := u.Query()
	q.Set("timestamp", ts)
	q.Set("sign", Sign(w.Secret, ts))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Sign returns base64(HMAC-SHA256(secret, timestamp + "\n" + secret)).
func Sign(secret, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "\n" + secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// leveledLogger routes retry diagnostics into the shared logger.
type leveledLogger struct {
	logger *log.Logger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.logger.Warn(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.logger.Warn(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.logger.Debug(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.logger.Debug(msg, kv...) }

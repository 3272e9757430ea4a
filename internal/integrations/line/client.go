package line

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultBaseURL = "https://api.line.me"

	// loadingSeconds keeps the typing indicator up while the completion call
	// is in flight. The platform caps this at 60.
	loadingSeconds = 20
)

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx responses from the LINE API.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("line: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to the LINE Messaging API: signature verification, webhook
// decoding and message delivery.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	tokenParam  string
	secretParam string

	tokenOnce sync.Once
	token     string
	tokenErr  error

	secretOnce sync.Once
	secret     string
	secretErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client resolving the channel access token and channel
// secret from the given parameter names on first use.
func NewClient(ps Getter, tokenParam, secretParam string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("line: paramstore getter must not be nil")
	}
	if strings.TrimSpace(tokenParam) == "" || strings.TrimSpace(secretParam) == "" {
		return nil, errors.New("line: token and secret parameter names must not be empty")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		tokenParam:  strings.TrimSpace(tokenParam),
		secretParam: strings.TrimSpace(secretParam),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.tokenOnce.Do(func() {
		c.token, c.tokenErr = c.resolveSecretParam(ctx, c.tokenParam, "channel access token")
	})
	return c.token, c.tokenErr
}

func (c *Client) resolveSecret(ctx context.Context) (string, error) {
	c.secretOnce.Do(func() {
		c.secret, c.secretErr = c.resolveSecretParam(ctx, c.secretParam, "channel secret")
	})
	return c.secret, c.secretErr
}

func (c *Client) resolveSecretParam(ctx context.Context, name, what string) (string, error) {
	raw, err := c.getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("line: fetch %s: %w", what, err)
	}
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", fmt.Errorf("line: %s is empty", what)
	}
	return v, nil
}

// VerifySignature checks the x-line-signature header against the raw webhook
// body: base64(HMAC-SHA256(channel secret, body)).
func (c *Client) VerifySignature(ctx context.Context, body []byte, signature string) (bool, error) {
	secret, err := c.resolveSecret(ctx)
	if err != nil {
		return false, err
	}
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, nil
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(decoded, mac.Sum(nil)), nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// Reply sends up to five messages against a single-use reply token. It must
// be called at most once per inbound event.
func (c *Client) Reply(ctx context.Context, replyToken string, messages ...Message) error {
	if strings.TrimSpace(replyToken) == "" {
		return errors.New("line: reply token must not be empty")
	}
	if len(messages) == 0 {
		return errors.New("line: at least one message is required")
	}
	return c.postJSON(ctx, "/v2/bot/message/reply", replyPayload{
		ReplyToken: replyToken,
		Messages:   messages,
	})
}

// Push sends messages to a user outside a reply context.
func (c *Client) Push(ctx context.Context, to string, messages ...Message) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("line: push target must not be empty")
	}
	if len(messages) == 0 {
		return errors.New("line: at least one message is required")
	}
	return c.postJSON(ctx, "/v2/bot/message/push", pushPayload{
		To:       to,
		Messages: messages,
	})
}

// StartLoading shows the typing indicator in the user's chat. Best-effort:
// callers are expected to ignore failures.
func (c *Client) StartLoading(ctx context.Context, chatID string) error {
	if strings.TrimSpace(chatID) == "" {
		return errors.New("line: chat id must not be empty")
	}
	return c.postJSON(ctx, "/v2/bot/chat/loading/start", loadingPayload{
		ChatID:         chatID,
		LoadingSeconds: loadingSeconds,
	})
}

type replyPayload struct {
	ReplyToken string    `json:"replyToken"`
	Messages   []Message `json:"messages"`
}

type pushPayload struct {
	To       string    `json:"to"`
	Messages []Message `json:"messages"`
}

type loadingPayload struct {
	ChatID         string `json:"chatId"`
	LoadingSeconds int    `json:"loadingSeconds"`
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	token, err := c.resolveToken(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("line: marshal payload: %w", err)
	}

	url := c.baseURL + path
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return fmt.Errorf("line: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Authorization", "Bearer "+token)

	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return fmt.Errorf("line: request failed: %w", doErr)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}
	return nil
}

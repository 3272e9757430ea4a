package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultBaseURL = "https://api.stripe.com"

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx responses from the Stripe API.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("stripe: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// CheckoutSession is the subset of a hosted checkout session the bot needs.
type CheckoutSession struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	CustomerID string `json:"customer"`
}

type customer struct {
	ID string `json:"id"`
}

type paymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// CheckoutConfig fixes the subscription plan and redirect URLs for hosted
// checkout sessions.
type CheckoutConfig struct {
	PriceID    string
	SuccessURL string
	CancelURL  string
}

func (c CheckoutConfig) validate() error {
	if strings.TrimSpace(c.PriceID) == "" {
		return errors.New("stripe: price id must not be empty")
	}
	if strings.TrimSpace(c.SuccessURL) == "" || strings.TrimSpace(c.CancelURL) == "" {
		return errors.New("stripe: success and cancel URLs must not be empty")
	}
	return nil
}

// Client is a focused Stripe REST client: customers, checkout sessions,
// payment intents and webhook verification. Stripe is the source of truth
// for every object created here; nothing is persisted locally.
type Client struct {
	baseURL    string
	httpClient *http.Client
	getter     Getter
	keyParam   string
	checkout   CheckoutConfig

	keyOnce sync.Once
	apiKey  string
	keyErr  error
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

// NewClient creates a Client resolving the secret API key from keyParam on
// first use.
func NewClient(ps Getter, keyParam string, checkout CheckoutConfig, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("stripe: paramstore getter must not be nil")
	}
	if strings.TrimSpace(keyParam) == "" {
		return nil, errors.New("stripe: key parameter name must not be empty")
	}
	if err := checkout.validate(); err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		getter:     ps,
		keyParam:   strings.TrimSpace(keyParam),
		checkout:   checkout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		raw, err := c.getter.GetParameter(ctx, c.keyParam)
		if err != nil {
			c.keyErr = fmt.Errorf("stripe: fetch secret key: %w", err)
			return
		}
		key := strings.TrimSpace(raw)
		if key == "" {
			c.keyErr = errors.New("stripe: secret key is empty")
			return
		}
		c.apiKey = key
	})
	return c.apiKey, c.keyErr
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// CreateCheckoutSession creates a customer tagged with the LINE user id and a
// subscription-mode hosted checkout session for the configured price. The
// returned session URL is what the upsell card links to.
func (c *Client) CreateCheckoutSession(ctx context.Context, lineUserID string) (CheckoutSession, error) {
	if strings.TrimSpace(lineUserID) == "" {
		return CheckoutSession{}, errors.New("stripe: line user id must not be empty")
	}

	var cust customer
	custForm := url.Values{}
	custForm.Set("metadata[lineId]", lineUserID)
	if err := c.postForm(ctx, "/v1/customers", custForm, &cust); err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create customer: %w", err)
	}

	form := url.Values{}
	form.Set("customer", cust.ID)
	form.Set("mode", "subscription")
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][price]", c.checkout.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", c.checkout.SuccessURL)
	form.Set("cancel_url", c.checkout.CancelURL)
	form.Set("locale", "ja")
	form.Set("allow_promotion_codes", "true")
	form.Set("metadata[lineId]", lineUserID)
	form.Set("customer_update[name]", "auto")
	form.Set("customer_update[address]", "auto")

	var session CheckoutSession
	if err := c.postForm(ctx, "/v1/checkout/sessions", form, &session); err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	if session.URL == "" {
		return CheckoutSession{}, errors.New("stripe: checkout session has no hosted URL")
	}
	return session, nil
}

// CreatePaymentIntent creates a one-off payment intent and returns its client
// secret.
func (c *Client) CreatePaymentIntent(ctx context.Context, amount int64, currency string) (string, error) {
	if amount <= 0 {
		return "", errors.New("stripe: amount must be positive")
	}
	if currency == "" {
		currency = "jpy"
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", currency)
	form.Set("automatic_payment_methods[enabled]", "true")

	var intent paymentIntent
	if err := c.postForm(ctx, "/v1/payment_intents", form, &intent); err != nil {
		return "", fmt.Errorf("stripe: create payment intent: %w", err)
	}
	if intent.ClientSecret == "" {
		return "", errors.New("stripe: payment intent has no client secret")
	}
	return intent.ClientSecret, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + path
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if reqErr != nil {
		return fmt.Errorf("create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return fmt.Errorf("request failed: %w", doErr)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        endpoint,
			Body:       string(buf),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// signatureTolerance bounds how old a signed webhook payload may be before it
// is rejected as a possible replay.
const signatureTolerance = 5 * time.Minute

// ErrInvalidSignature marks a webhook delivery that failed signature
// verification.
var ErrInvalidSignature = errors.New("stripe: invalid webhook signature")

// Event is a verified webhook notification.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// WebhookVerifier validates Stripe-Signature headers against the endpoint's
// webhook signing secret.
type WebhookVerifier struct {
	getter      Getter
	secretParam string

	now func() time.Time

	secretOnce sync.Once
	secret     string
	secretErr  error
}

func NewWebhookVerifier(ps Getter, secretParam string) (*WebhookVerifier, error) {
	if ps == nil {
		return nil, errors.New("stripe: paramstore getter must not be nil")
	}
	if strings.TrimSpace(secretParam) == "" {
		return nil, errors.New("stripe: webhook secret parameter name must not be empty")
	}
	return &WebhookVerifier{
		getter:      ps,
		secretParam: strings.TrimSpace(secretParam),
		now:         time.Now,
	}, nil
}

func (v *WebhookVerifier) resolveSecret(ctx context.Context) (string, error) {
	v.secretOnce.Do(func() {
		raw, err := v.getter.GetParameter(ctx, v.secretParam)
		if err != nil {
			v.secretErr = fmt.Errorf("stripe: fetch webhook secret: %w", err)
			return
		}
		secret := strings.TrimSpace(raw)
		if secret == "" {
			v.secretErr = errors.New("stripe: webhook secret is empty")
			return
		}
		v.secret = secret
	})
	return v.secret, v.secretErr
}

// VerifyWebhook checks the Stripe-Signature header (t=<unix>,v1=<hex hmac>)
// against the raw body and decodes the event on success. Signature failures
// return ErrInvalidSignature; anything else is an infrastructure error.
func (v *WebhookVerifier) VerifyWebhook(ctx context.Context, body []byte, signatureHeader string) (Event, error) {
	secret, err := v.resolveSecret(ctx)
	if err != nil {
		return Event{}, err
	}

	ts, candidates, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return Event{}, ErrInvalidSignature
	}

	age := v.now().Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return Event{}, ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	expected := mac.Sum(nil)

	verified := false
	for _, candidate := range candidates {
		decoded, decErr := hex.DecodeString(candidate)
		if decErr != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			verified = true
			break
		}
	}
	if !verified {
		return Event{}, ErrInvalidSignature
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return Event{}, fmt.Errorf("stripe: decode webhook event: %w", err)
	}
	return event, nil
}

// parseSignatureHeader splits "t=1700000000,v1=abc,v1=def" into the signed
// timestamp and the v1 signature candidates.
func parseSignatureHeader(header string) (int64, []string, error) {
	var ts int64
	var tsSeen bool
	var candidates []string

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("stripe: malformed timestamp in signature header: %w", err)
			}
			ts = parsed
			tsSeen = true
		case "v1":
			candidates = append(candidates, value)
		}
	}
	if !tsSeen || len(candidates) == 0 {
		return 0, nil, errors.New("stripe: signature header missing t or v1")
	}
	return ts, candidates, nil
}

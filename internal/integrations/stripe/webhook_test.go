package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

func signPayload(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestVerifier(t *testing.T, at time.Time) *WebhookVerifier {
	t.Helper()
	v, err := NewWebhookVerifier(&fakeGetter{val: testWebhookSecret}, "/trainer-agent/stripe-webhook-secret")
	require.NoError(t, err)
	v.now = func() time.Time { return at }
	return v
}

func TestVerifyWebhook_HappyPath(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), signPayload(testWebhookSecret, now.Unix(), body))

	v := newTestVerifier(t, now)
	event, err := v.VerifyWebhook(context.Background(), body, header)
	require.NoError(t, err)
	require.Equal(t, "evt_1", event.ID)
	require.Equal(t, "payment_intent.succeeded", event.Type)
	require.Contains(t, string(event.Data.Object), "pi_123")
}

func TestVerifyWebhook_SecondCandidateAccepted(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`)
	header := fmt.Sprintf("t=%d,v1=deadbeef,v1=%s", now.Unix(), signPayload(testWebhookSecret, now.Unix(), body))

	v := newTestVerifier(t, now)
	_, err := v.VerifyWebhook(context.Background(), body, header)
	require.NoError(t, err)
}

func TestVerifyWebhook_WrongSecret(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{}}}`)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), signPayload("whsec_other", now.Unix(), body))

	v := newTestVerifier(t, now)
	_, err := v.VerifyWebhook(context.Background(), body, header)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyWebhook_StalePayload(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	signedAt := now.Add(-10 * time.Minute).Unix()
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{}}}`)
	header := fmt.Sprintf("t=%d,v1=%s", signedAt, signPayload(testWebhookSecret, signedAt, body))

	v := newTestVerifier(t, now)
	_, err := v.VerifyWebhook(context.Background(), body, header)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyWebhook_MalformedHeader(t *testing.T) {
	v := newTestVerifier(t, time.Unix(1_700_000_000, 0))
	for _, header := range []string{"", "v1=abc", "t=notanumber,v1=abc", "t=1700000000"} {
		_, err := v.VerifyWebhook(context.Background(), []byte(`{}`), header)
		require.ErrorIs(t, err, ErrInvalidSignature, "header=%q", header)
	}
}

func TestVerifyWebhook_TamperedBody(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{}}}`)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), signPayload(testWebhookSecret, now.Unix(), body))

	v := newTestVerifier(t, now)
	_, err := v.VerifyWebhook(context.Background(), []byte(`{"id":"evt_2"}`), header)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestParseSignatureHeader(t *testing.T) {
	ts, candidates, err := parseSignatureHeader("t=1700000000, v1=abc, v0=legacy, v1=def")
	require.NoError(t, err)
	require.Equal(t, int64(1_700_000_000), ts)
	require.Equal(t, []string{"abc", "def"}, candidates)
}

package line

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeGetter struct {
	values map[string]string
	err    error
	calls  int
}

func (f *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.values[name], nil
}

func testGetter() *fakeGetter {
	return &fakeGetter{values: map[string]string{
		"/trainer-agent/channel-access-token": "test-token",
		"/trainer-agent/channel-secret":       "test-secret",
	}}
}

func mustNewClient(t *testing.T, g Getter, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(g, "/trainer-agent/channel-access-token", "/trainer-agent/channel-secret", opts...)
	require.NoError(t, err)
	return c
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, "a", "b")
	require.Error(t, err)

	_, err = NewClient(testGetter(), "", "b")
	require.Error(t, err)

	_, err = NewClient(testGetter(), "a", "  ")
	require.Error(t, err)
}

func TestVerifySignature_Valid(t *testing.T) {
	c := mustNewClient(t, testGetter())
	body := []byte(`{"events":[]}`)

	ok, err := c.VerifySignature(context.Background(), body, sign("test-secret", body))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	c := mustNewClient(t, testGetter())
	body := []byte(`{"events":[]}`)

	ok, err := c.VerifySignature(context.Background(), body, sign("other-secret", body))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifySignature_NotBase64(t *testing.T) {
	c := mustNewClient(t, testGetter())
	ok, err := c.VerifySignature(context.Background(), []byte(`{}`), "%%%not-base64%%%")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifySignature_SecretUnavailable(t *testing.T) {
	c := mustNewClient(t, &fakeGetter{err: errors.New("ssm down")})
	_, err := c.VerifySignature(context.Background(), []byte(`{}`), "sig")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ssm down")
}

func TestVerifySignature_SecretCachedAcrossCalls(t *testing.T) {
	g := testGetter()
	c := mustNewClient(t, g)
	body := []byte(`{"events":[]}`)

	for i := 0; i < 3; i++ {
		_, err := c.VerifySignature(context.Background(), body, sign("test-secret", body))
		require.NoError(t, err)
	}
	require.Equal(t, 1, g.calls)
}

func TestReply_HappyPath(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload replyPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		var raw struct {
			ReplyToken string            `json:"replyToken"`
			Messages   []json.RawMessage `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		gotPayload.ReplyToken = raw.ReplyToken
		for range raw.Messages {
			gotPayload.Messages = append(gotPayload.Messages, nil)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := mustNewClient(t, testGetter(), WithBaseURL(srv.URL))
	err := c.Reply(context.Background(), "reply-token-1", NewTextMessage("hi"))
	require.NoError(t, err)
	require.Equal(t, "/v2/bot/message/reply", gotPath)
	require.Equal(t, "Bearer test-token", gotAuth)
	require.Equal(t, "reply-token-1", gotPayload.ReplyToken)
	require.Len(t, gotPayload.Messages, 1)
}

func TestReply_EmptyToken(t *testing.T) {
	c := mustNewClient(t, testGetter())
	err := c.Reply(context.Background(), " ", NewTextMessage("hi"))
	require.Error(t, err)
}

func TestReply_NoMessages(t *testing.T) {
	c := mustNewClient(t, testGetter())
	err := c.Reply(context.Background(), "reply-token-1")
	require.Error(t, err)
}

func TestReply_UpstreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"Invalid reply token"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := mustNewClient(t, testGetter(), WithBaseURL(srv.URL))
	err := c.Reply(context.Background(), "used-token", NewTextMessage("hi"))
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestPush_HappyPath(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := mustNewClient(t, testGetter(), WithBaseURL(srv.URL))
	err := c.Push(context.Background(), "U123", NewTextMessage("連絡は？"))
	require.NoError(t, err)
	require.Equal(t, "/v2/bot/message/push", gotPath)
	require.Equal(t, "U123", gotBody["to"])
}

func TestPush_EmptyTarget(t *testing.T) {
	c := mustNewClient(t, testGetter())
	err := c.Push(context.Background(), "", NewTextMessage("hi"))
	require.Error(t, err)
}

func TestStartLoading_HappyPath(t *testing.T) {
	var gotPath string
	var gotBody loadingPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := mustNewClient(t, testGetter(), WithBaseURL(srv.URL))
	err := c.StartLoading(context.Background(), "U123")
	require.NoError(t, err)
	require.Equal(t, "/v2/bot/chat/loading/start", gotPath)
	require.Equal(t, "U123", gotBody.ChatID)
	require.Equal(t, loadingSeconds, gotBody.LoadingSeconds)
}

func TestNewSubscriptionCard_WellFormed(t *testing.T) {
	card := NewSubscriptionCard("https://checkout.stripe.com/c/pay/cs_test_123")
	require.Equal(t, "flex", card.Type)
	require.NotEmpty(t, card.AltText)

	var bubble map[string]any
	require.NoError(t, json.Unmarshal(card.Contents, &bubble))
	require.Equal(t, "bubble", bubble["type"])

	raw, err := json.Marshal(card)
	require.NoError(t, err)
	require.Contains(t, string(raw), "https://checkout.stripe.com/c/pay/cs_test_123")
}

package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeGetter struct {
	val   string
	err   error
	calls int
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.val, f.err
}

func testCheckout() CheckoutConfig {
	return CheckoutConfig{
		PriceID:    "price_123",
		SuccessURL: "https://example.com/success",
		CancelURL:  "https://line.me/R/",
	}
}

func mustNewClient(t *testing.T, g Getter, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(g, "/trainer-agent/stripe-secret-key", testCheckout(), opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, "p", testCheckout())
	require.Error(t, err)

	_, err = NewClient(&fakeGetter{}, " ", testCheckout())
	require.Error(t, err)

	_, err = NewClient(&fakeGetter{}, "p", CheckoutConfig{SuccessURL: "s", CancelURL: "c"})
	require.Error(t, err)

	_, err = NewClient(&fakeGetter{}, "p", CheckoutConfig{PriceID: "price_123"})
	require.Error(t, err)
}

func TestCreateCheckoutSession_HappyPath(t *testing.T) {
	var custForm, sessionForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/customers":
			custForm = r.PostForm
			_, _ = w.Write([]byte(`{"id":"cus_123"}`))
		case "/v1/checkout/sessions":
			sessionForm = r.PostForm
			_, _ = w.Write([]byte(`{"id":"cs_123","url":"https://checkout.stripe.com/c/pay/cs_123","customer":"cus_123"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := mustNewClient(t, &fakeGetter{val: "sk_test_123"}, WithBaseURL(srv.URL))
	session, err := c.CreateCheckoutSession(context.Background(), "U123")
	require.NoError(t, err)
	require.Equal(t, "https://checkout.stripe.com/c/pay/cs_123", session.URL)
	require.Equal(t, "cus_123", session.CustomerID)

	require.Equal(t, "U123", custForm.Get("metadata[lineId]"))
	require.Equal(t, "cus_123", sessionForm.Get("customer"))
	require.Equal(t, "subscription", sessionForm.Get("mode"))
	require.Equal(t, "price_123", sessionForm.Get("line_items[0][price]"))
	require.Equal(t, "1", sessionForm.Get("line_items[0][quantity]"))
	require.Equal(t, "ja", sessionForm.Get("locale"))
	require.Equal(t, "U123", sessionForm.Get("metadata[lineId]"))
}

func TestCreateCheckoutSession_EmptyUser(t *testing.T) {
	c := mustNewClient(t, &fakeGetter{val: "sk_test_123"})
	_, err := c.CreateCheckoutSession(context.Background(), " ")
	require.Error(t, err)
}

func TestCreateCheckoutSession_CustomerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := mustNewClient(t, &fakeGetter{val: "sk_test_123"}, WithBaseURL(srv.URL))
	_, err := c.CreateCheckoutSession(context.Background(), "U123")
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestCreateCheckoutSession_MissingURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/customers":
			_, _ = w.Write([]byte(`{"id":"cus_123"}`))
		default:
			_, _ = w.Write([]byte(`{"id":"cs_123"}`))
		}
	}))
	defer srv.Close()

	c := mustNewClient(t, &fakeGetter{val: "sk_test_123"}, WithBaseURL(srv.URL))
	_, err := c.CreateCheckoutSession(context.Background(), "U123")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no hosted URL")
}

func TestCreateCheckoutSession_KeyUnavailable(t *testing.T) {
	c := mustNewClient(t, &fakeGetter{err: errors.New("ssm down")})
	_, err := c.CreateCheckoutSession(context.Background(), "U123")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ssm down")
}

func TestCreatePaymentIntent_HappyPath(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		_, _ = w.Write([]byte(`{"id":"pi_123","client_secret":"pi_123_secret_456"}`))
	}))
	defer srv.Close()

	c := mustNewClient(t, &fakeGetter{val: "sk_test_123"}, WithBaseURL(srv.URL))
	secret, err := c.CreatePaymentIntent(context.Background(), 5000, "")
	require.NoError(t, err)
	require.Equal(t, "pi_123_secret_456", secret)
	require.Equal(t, "5000", form.Get("amount"))
	require.Equal(t, "jpy", form.Get("currency"))
	require.Equal(t, "true", form.Get("automatic_payment_methods[enabled]"))
}

func TestCreatePaymentIntent_InvalidAmount(t *testing.T) {
	c := mustNewClient(t, &fakeGetter{val: "sk_test_123"})
	_, err := c.CreatePaymentIntent(context.Background(), 0, "jpy")
	require.Error(t, err)
}

func TestResolveAPIKey_CachedAcrossCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pi_123","client_secret":"s"}`))
	}))
	defer srv.Close()

	g := &fakeGetter{val: "sk_test_123"}
	c := mustNewClient(t, g, WithBaseURL(srv.URL))
	for i := 0; i < 3; i++ {
		_, err := c.CreatePaymentIntent(context.Background(), 100, "jpy")
		require.NoError(t, err)
	}
	require.Equal(t, 1, g.calls)
}

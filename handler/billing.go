package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"trainer-agent/internal/integrations/stripe"
)

const stripeSignatureHeader = "stripe-signature"

// PaymentClient creates payment intents against the billing provider.
type PaymentClient interface {
	CreatePaymentIntent(ctx context.Context, amount int64, currency string) (string, error)
}

// EventVerifier authenticates billing provider webhook deliveries.
type EventVerifier interface {
	VerifyWebhook(ctx context.Context, body []byte, sigHeader string) (stripe.Event, error)
}

// BillingHandler is the Lambda boundary for payment intents and billing
// provider webhooks.
type BillingHandler struct {
	payments PaymentClient
	verifier EventVerifier
	log      *slog.Logger
}

func NewBillingHandler(payments PaymentClient, verifier EventVerifier, log *slog.Logger) (*BillingHandler, error) {
	if payments == nil {
		return nil, errors.New("handler: payment client must not be nil")
	}
	if verifier == nil {
		return nil, errors.New("handler: event verifier must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &BillingHandler{payments: payments, verifier: verifier, log: log}, nil
}

func (h *BillingHandler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	switch {
	case strings.HasSuffix(req.Path, "/create-payment-intent"):
		return h.createPaymentIntent(ctx, req), nil
	case strings.HasSuffix(req.Path, "/webhook"):
		return h.handleWebhook(ctx, req), nil
	default:
		return jsonResponse(http.StatusNotFound, map[string]any{"error": "Not found"}), nil
	}
}

func (h *BillingHandler) createPaymentIntent(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	var payload struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal([]byte(req.Body), &payload); err != nil {
		return jsonResponse(http.StatusBadRequest, map[string]any{"error": "Invalid request body"})
	}
	if payload.Amount <= 0 {
		return jsonResponse(http.StatusBadRequest, map[string]any{"error": "Amount must be positive"})
	}

	clientSecret, err := h.payments.CreatePaymentIntent(ctx, payload.Amount, payload.Currency)
	if err != nil {
		h.log.Error("payment intent creation failed", "amount", payload.Amount, "err", err)
		return jsonResponse(http.StatusBadRequest, map[string]any{"error": err.Error()})
	}

	return jsonResponse(http.StatusOK, map[string]any{"clientSecret": clientSecret})
}

func (h *BillingHandler) handleWebhook(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	sigHeader := headerValue(req.Headers, stripeSignatureHeader)

	event, err := h.verifier.VerifyWebhook(ctx, []byte(req.Body), sigHeader)
	if err != nil {
		if errors.Is(err, stripe.ErrInvalidSignature) {
			h.log.Warn("billing webhook rejected: invalid signature")
			return jsonResponse(http.StatusBadRequest, map[string]any{"error": "Invalid signature"})
		}
		h.log.Error("billing webhook handling failed", "err", err)
		return jsonResponse(http.StatusInternalServerError, map[string]any{"error": "Webhook handling failed"})
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var intent struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(event.Data.Object, &intent); err == nil {
			h.log.Info("payment succeeded", "paymentIntentId", intent.ID)
		}
	case "checkout.session.completed":
		var session struct {
			ID       string `json:"id"`
			Metadata struct {
				LineID string `json:"lineId"`
			} `json:"metadata"`
		}
		if err := json.Unmarshal(event.Data.Object, &session); err == nil {
			h.log.Info("checkout completed", "sessionId", session.ID, "lineId", session.Metadata.LineID)
		}
	default:
		h.log.Info("billing event ignored", "type", event.Type)
	}

	return jsonResponse(http.StatusOK, map[string]any{"received": true})
}

func jsonResponse(status int, payload map[string]any) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(payload)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"trainer-agent/internal/domain"
	"trainer-agent/internal/integrations/line"
)

const (
	signatureHeader = "x-line-signature"

	missingSignatureBody = "署名が見つかりません。"
	invalidSignatureBody = "署名が無効です。"
	invalidBodyBody      = "リクエストが無効です。"
	serverErrorBody      = "サーバーエラーが発生しました。"
	successBody          = "Success"
)

// Conversationalist handles one decoded message event end to end.
type Conversationalist interface {
	HandleMessage(ctx context.Context, ev domain.MessageEvent) error
}

// SignatureVerifier checks an inbound webhook body against its signature
// header.
type SignatureVerifier interface {
	VerifySignature(ctx context.Context, body []byte, signature string) (bool, error)
}

// WebhookHandler is the Lambda boundary for the messaging webhook.
type WebhookHandler struct {
	uc       Conversationalist
	verifier SignatureVerifier
	log      *slog.Logger

	decode func(body []byte) ([]domain.MessageEvent, error)
}

func NewWebhookHandler(uc Conversationalist, verifier SignatureVerifier, log *slog.Logger) (*WebhookHandler, error) {
	if uc == nil {
		return nil, errors.New("handler: conversation usecase must not be nil")
	}
	if verifier == nil {
		return nil, errors.New("handler: signature verifier must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		uc:       uc,
		verifier: verifier,
		log:      log,
		decode:   line.DecodeEvents,
	}, nil
}

// Handle validates and dispatches one webhook delivery. The signature gate
// runs before any decoding: a missing header is rejected without touching
// the body.
func (h *WebhookHandler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	log := h.log.With("correlationId", uuid.NewString())

	signature := headerValue(req.Headers, signatureHeader)
	if signature == "" {
		log.Warn("webhook rejected: missing signature header")
		return textResponse(http.StatusBadRequest, missingSignatureBody), nil
	}

	body := []byte(req.Body)
	ok, err := h.verifier.VerifySignature(ctx, body, signature)
	if err != nil {
		log.Error("signature verification unavailable", "err", err)
		return textResponse(http.StatusInternalServerError, serverErrorBody), nil
	}
	if !ok {
		log.Warn("webhook rejected: invalid signature")
		return textResponse(http.StatusBadRequest, invalidSignatureBody), nil
	}

	msgEvents, err := h.decode(body)
	if err != nil {
		log.Warn("webhook body rejected", "err", err)
		return textResponse(http.StatusBadRequest, invalidBodyBody), nil
	}

	for _, ev := range msgEvents {
		if err := h.uc.HandleMessage(ctx, ev); err != nil {
			log.Error("message handling failed", "userId", ev.UserID, "err", err)
			return textResponse(http.StatusInternalServerError, serverErrorBody), nil
		}
	}

	return textResponse(http.StatusOK, successBody), nil
}

// headerValue performs a case-insensitive header lookup; API Gateway does not
// normalize header casing.
func headerValue(headers map[string]string, name string) string {
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

// textResponse wraps a literal marker string as a JSON-encoded body.
func textResponse(status int, body string) events.APIGatewayProxyResponse {
	encoded, _ := json.Marshal(body)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(encoded),
	}
}

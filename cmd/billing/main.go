package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"trainer-agent/handler"
	"trainer-agent/internal/integrations/paramstore"
	"trainer-agent/internal/integrations/stripe"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	paramPrefix := mustEnv("PARAM_PREFIX")
	stripePriceID := mustEnv("STRIPE_PRICE_ID")
	checkoutSuccessURL := mustEnv("CHECKOUT_SUCCESS_URL")
	checkoutCancelURL := mustEnv("CHECKOUT_CANCEL_URL")

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	stripeClient, err := stripe.NewClient(ssmClient,
		paramstore.Join(paramPrefix, "stripe-secret-key"),
		stripe.CheckoutConfig{
			PriceID:    stripePriceID,
			SuccessURL: checkoutSuccessURL,
			CancelURL:  checkoutCancelURL,
		})
	if err != nil {
		slog.Error("failed to create Stripe client", "err", err)
		os.Exit(1)
	}
	verifier, err := stripe.NewWebhookVerifier(ssmClient, paramstore.Join(paramPrefix, "stripe-webhook-secret"))
	if err != nil {
		slog.Error("failed to create webhook verifier", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewBillingHandler(stripeClient, verifier, slog.Default())
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

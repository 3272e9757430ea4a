package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"trainer-agent/handler"
	"trainer-agent/internal/integrations/line"
	"trainer-agent/internal/integrations/openai"
	"trainer-agent/internal/integrations/paramstore"
	"trainer-agent/internal/integrations/stripe"
	"trainer-agent/internal/repository"
	"trainer-agent/internal/usecase"
)

// billingAdapter narrows the Stripe client to the single URL the
// conversation flow needs.
type billingAdapter struct {
	client *stripe.Client
}

func (a billingAdapter) CreateCheckoutSession(ctx context.Context, lineUserID string) (string, error) {
	session, err := a.client.CreateCheckoutSession(ctx, lineUserID)
	if err != nil {
		return "", err
	}
	return session.URL, nil
}

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	historyTable := mustEnv("HISTORY_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	stripePriceID := mustEnv("STRIPE_PRICE_ID")
	checkoutSuccessURL := mustEnv("CHECKOUT_SUCCESS_URL")
	checkoutCancelURL := mustEnv("CHECKOUT_CANCEL_URL")
	quotaThreshold := envInt("QUOTA_THRESHOLD", 3)
	historyLimit := envInt("HISTORY_LIMIT", 5)
	timezone := envString("REFERENCE_TIMEZONE", "Asia/Tokyo")

	failMode, err := usecase.ParseFailMode(os.Getenv("QUOTA_FAIL_MODE"))
	if err != nil {
		slog.Error("invalid QUOTA_FAIL_MODE", "err", err)
		os.Exit(1)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		slog.Error("invalid REFERENCE_TIMEZONE", "timezone", timezone, "err", err)
		os.Exit(1)
	}

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
	historyStore, err := repository.NewHistoryStore(awsdynamodb.NewFromConfig(cfg), historyTable, loc)
	if err != nil {
		slog.Error("failed to create history store", "err", err)
		os.Exit(1)
	}
	openaiClient, err := openai.NewClient(ssmClient, paramstore.Join(paramPrefix, "openai-api-key"))
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}
	lineClient, err := line.NewClient(ssmClient,
		paramstore.Join(paramPrefix, "line-channel-access-token"),
		paramstore.Join(paramPrefix, "line-channel-secret"))
	if err != nil {
		slog.Error("failed to create LINE client", "err", err)
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

	// ---- Handler ----
	conversation, err := usecase.NewConversationService(
		historyStore,
		openaiClient,
		billingAdapter{client: stripeClient},
		lineClient,
		ssmClient,
		usecase.ConversationConfig{
			Threshold:    quotaThreshold,
			HistoryLimit: historyLimit,
			FailMode:     failMode,
			Location:     loc,
			PromptParam:  paramstore.Join(paramPrefix, "system-prompt"),
			ModelParam:   paramstore.Join(paramPrefix, "model"),
		},
		slog.Default(),
	)
	if err != nil {
		slog.Error("failed to create conversation service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewWebhookHandler(conversation, lineClient, slog.Default())
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

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"trainer-agent/handler"
	"trainer-agent/internal/repository"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	profileTable := mustEnv("PROFILE_TABLE")

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	profileStore, err := repository.NewProfileStore(awsdynamodb.NewFromConfig(cfg), profileTable)
	if err != nil {
		slog.Error("failed to create profile store", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewProfileHandler(profileStore, slog.Default())
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

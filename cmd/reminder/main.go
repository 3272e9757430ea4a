package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"trainer-agent/handler"
	"trainer-agent/internal/integrations/line"
	"trainer-agent/internal/integrations/paramstore"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	paramPrefix := mustEnv("PARAM_PREFIX")
	recipient := mustEnv("REMINDER_RECIPIENT")
	messagesFile := os.Getenv("REMINDER_MESSAGES_FILE")

	messages, err := loadMessages(messagesFile)
	if err != nil {
		// A missing file degrades to the built-in fallback nudge.
		slog.Warn("failed to load reminder messages", "file", messagesFile, "err", err)
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
	lineClient, err := line.NewClient(ssmClient,
		paramstore.Join(paramPrefix, "line-channel-access-token"),
		paramstore.Join(paramPrefix, "line-channel-secret"))
	if err != nil {
		slog.Error("failed to create LINE client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewReminderHandler(lineClient, recipient, messages, slog.Default())
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

// loadMessages reads one nudge message per non-empty line.
func loadMessages(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var messages []string
	for _, ln := range strings.Split(string(raw), "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			messages = append(messages, ln)
		}
	}
	return messages, nil
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

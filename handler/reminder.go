package handler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"

	"trainer-agent/internal/integrations/line"
)

// fallbackNudge is sent when no reminder messages are configured.
const fallbackNudge = "連絡は？"

// Pusher sends an unsolicited message to a chat.
type Pusher interface {
	Push(ctx context.Context, to string, messages ...line.Message) error
}

// ReminderHandler sends one randomly chosen nudge message on a schedule.
type ReminderHandler struct {
	pusher    Pusher
	recipient string
	messages  []string
	log       *slog.Logger

	pick func(n int) int
}

// NewReminderHandler builds a reminder sender. Each entry in messages may use
// a literal `\n` to encode a line break.
func NewReminderHandler(pusher Pusher, recipient string, messages []string, log *slog.Logger) (*ReminderHandler, error) {
	if pusher == nil {
		return nil, errors.New("handler: pusher must not be nil")
	}
	if strings.TrimSpace(recipient) == "" {
		return nil, errors.New("handler: reminder recipient must not be empty")
	}
	if log == nil {
		log = slog.Default()
	}
	return &ReminderHandler{
		pusher:    pusher,
		recipient: recipient,
		messages:  messages,
		log:       log,
		pick:      rand.Intn,
	}, nil
}

func (h *ReminderHandler) Handle(ctx context.Context) error {
	text := fallbackNudge
	if len(h.messages) > 0 {
		text = strings.ReplaceAll(h.messages[h.pick(len(h.messages))], `\n`, "\n")
	}

	if err := h.pusher.Push(ctx, h.recipient, line.NewTextMessage(text)); err != nil {
		h.log.Error("reminder push failed", "err", err)
		return err
	}

	h.log.Info("reminder sent", "recipient", h.recipient)
	return nil
}

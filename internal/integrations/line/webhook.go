package line

import (
	"encoding/json"
	"fmt"

	"trainer-agent/internal/domain"
)

// webhookPayload is the wire shape of an inbound webhook delivery.
type webhookPayload struct {
	Destination string         `json:"destination"`
	Events      []webhookEvent `json:"events"`
}

type webhookEvent struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Source     struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
	} `json:"source"`
	Message struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

// DecodeEvents parses a webhook body into typed text-message events.
// Non-message and non-text events are skipped; a text message event missing
// its reply token or user id is a hard error rather than a field probed
// around at call sites.
func DecodeEvents(body []byte) ([]domain.MessageEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("line: decode webhook body: %w", err)
	}

	events := make([]domain.MessageEvent, 0, len(payload.Events))
	for _, ev := range payload.Events {
		if ev.Type != "message" || ev.Message.Type != "text" {
			continue
		}
		if ev.ReplyToken == "" {
			return nil, fmt.Errorf("line: message event %s has no reply token", ev.Message.ID)
		}
		if ev.Source.UserID == "" {
			return nil, fmt.Errorf("line: message event %s has no user id", ev.Message.ID)
		}
		events = append(events, domain.MessageEvent{
			ReplyToken: ev.ReplyToken,
			UserID:     ev.Source.UserID,
			Text:       ev.Message.Text,
		})
	}
	return events, nil
}

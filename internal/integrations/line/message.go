package line

import (
	"encoding/json"
	"fmt"
)

// Message is one outbound LINE message. Implementations marshal to the wire
// shape expected by the reply/push endpoints.
type Message interface {
	message()
}

// TextMessage is a plain text message.
type TextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (TextMessage) message() {}

func NewTextMessage(text string) TextMessage {
	return TextMessage{Type: "text", Text: text}
}

// FlexMessage is a rich card message with a fallback alt text.
type FlexMessage struct {
	Type     string          `json:"type"`
	AltText  string          `json:"altText"`
	Contents json.RawMessage `json:"contents"`
}

func (FlexMessage) message() {}

// NewSubscriptionCard builds the premium-plan upsell bubble pointing at a
// hosted checkout URL.
func NewSubscriptionCard(checkoutURL string) FlexMessage {
	bubble := fmt.Sprintf(`{
		"type": "bubble",
		"header": {
			"type": "box",
			"layout": "vertical",
			"contents": [
				{"type": "text", "text": "AIチャットボット", "weight": "bold", "size": "xl", "color": "#ffffff"}
			],
			"backgroundColor": "#2B5FED"
		},
		"body": {
			"type": "box",
			"layout": "vertical",
			"contents": [
				{"type": "text", "text": "プレミアムプラン", "weight": "bold", "size": "md", "margin": "md"},
				{"type": "text", "text": "¥5,000 / 月", "size": "xl", "margin": "md"},
				{"type": "text", "text": "・無制限のAIチャット\n・優先サポート\n・高度な機能へのアクセス", "wrap": true, "margin": "md", "size": "sm", "color": "#666666"}
			]
		},
		"footer": {
			"type": "box",
			"layout": "vertical",
			"contents": [
				{"type": "button", "action": {"type": "uri", "label": "プレミアムに登録", "uri": %q}, "style": "primary", "color": "#2B5FED"}
			]
		}
	}`, checkoutURL)

	return FlexMessage{
		Type:     "flex",
		AltText:  "サブスクリプションのご案内",
		Contents: json.RawMessage(bubble),
	}
}

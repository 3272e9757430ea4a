package domain

import "time"

// Turn is a single persisted conversation exchange. Timestamp is assigned by
// the history store at write time, never by callers.
type Turn struct {
	LineID           string
	Timestamp        time.Time
	UserMessage      string
	AssistantMessage string
}

// MessageEvent is one inbound text message decoded from a messaging webhook
// delivery. ReplyToken is single-use: the platform accepts exactly one reply
// per token.
type MessageEvent struct {
	ReplyToken string
	UserID     string
	Text       string
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"trainer-agent/internal/domain"
	"trainer-agent/internal/integrations/line"
)

const (
	defaultThreshold    = 3
	defaultHistoryLimit = 5

	// fallbackReply is the fixed user-safe string served when the completion
	// service errors or returns no candidates.
	fallbackReply = "申し訳ありません。応答を生成できませんでした。"
	// apologyReply is the catch-all reply when the flow itself breaks.
	apologyReply = "エラーが発生しました。しばらく待ってから再度お試しください。"
	// upsellText accompanies the subscription card once the daily quota is
	// reached.
	upsellText = "本日の無料メッセージ数の上限に達しました。プレミアムプランのご登録で引き続きご利用いただけます。"
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

type HistoryStore interface {
	Append(ctx context.Context, lineID, userMessage, assistantMessage string) (domain.Turn, error)
	Recent(ctx context.Context, lineID string, limit int) ([]domain.Turn, error)
	CountSince(ctx context.Context, lineID string, start, end time.Time) (int, error)
}

type BillingClient interface {
	CreateCheckoutSession(ctx context.Context, lineUserID string) (string, error)
}

type MessagingGateway interface {
	Reply(ctx context.Context, replyToken string, messages ...line.Message) error
	StartLoading(ctx context.Context, chatID string) error
}

// ConversationConfig parameterizes one deployment of the orchestrator, in
// place of near-duplicate handler variants differing only in threshold,
// prompt or model.
type ConversationConfig struct {
	// Threshold is the daily free-message quota. Zero means the default.
	Threshold int
	// HistoryLimit caps the turns fetched for model context.
	HistoryLimit int
	// FailMode selects fail-open vs fail-closed when the count fetch fails.
	FailMode FailMode
	// Location is the reference timezone bounding the quota window.
	Location *time.Location
	// PromptParam and ModelParam are the SSM parameter names for the system
	// prompt and completion model.
	PromptParam string
	ModelParam  string
}

// ConversationService orchestrates one inbound message end to end: quota
// check, upsell or completion, persistence and exactly one reply.
//
// The count read and the later append are deliberately not atomic: two
// near-simultaneous messages from one user can both pass the quota check.
// Accepted for a soft quota.
type ConversationService struct {
	history HistoryStore
	llm     LLMClient
	billing BillingClient
	gateway MessagingGateway
	params  ParamGetter
	cfg     ConversationConfig
	log     *slog.Logger

	now func() time.Time

	cacheMu      sync.RWMutex
	cacheLoaded  bool
	systemPrompt string
	model        string
}

func NewConversationService(h HistoryStore, llm LLMClient, b BillingClient, g MessagingGateway, p ParamGetter, cfg ConversationConfig, log *slog.Logger) (*ConversationService, error) {
	if h == nil {
		return nil, errors.New("usecase: history store must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if b == nil {
		return nil, errors.New("usecase: billing client must not be nil")
	}
	if g == nil {
		return nil, errors.New("usecase: messaging gateway must not be nil")
	}
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if cfg.Location == nil {
		return nil, errors.New("usecase: reference timezone must not be nil")
	}
	if strings.TrimSpace(cfg.PromptParam) == "" || strings.TrimSpace(cfg.ModelParam) == "" {
		return nil, errors.New("usecase: prompt and model parameter names must not be empty")
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if log == nil {
		log = slog.Default()
	}
	return &ConversationService{
		history: h,
		llm:     llm,
		billing: b,
		gateway: g,
		params:  p,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}, nil
}

// HandleMessage runs the full flow for one inbound event. The platform
// accepts exactly one reply per token, so every path, including the
// catch-all, funnels into a single Reply call.
func (s *ConversationService) HandleMessage(ctx context.Context, ev domain.MessageEvent) error {
	messages := s.converse(ctx, ev)
	if err := s.gateway.Reply(ctx, ev.ReplyToken, messages...); err != nil {
		return newError(ErrorUpstream, "line_reply_error", err)
	}
	return nil
}

// converse decides the outbound messages for one event. It never returns an
// error: every upstream failure degrades to a user-safe reply.
func (s *ConversationService) converse(ctx context.Context, ev domain.MessageEvent) (messages []line.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("conversation flow panicked", "userId", ev.UserID, "panic", r)
			messages = []line.Message{line.NewTextMessage(apologyReply)}
		}
	}()

	count := s.countToday(ctx, ev.UserID)
	if Decide(count, s.cfg.Threshold) == Upsell {
		return s.upsell(ctx, ev.UserID, count)
	}

	history, err := s.history.Recent(ctx, ev.UserID, s.cfg.HistoryLimit)
	if err != nil {
		// Degraded context, not fatal.
		s.log.Warn("history fetch failed, proceeding without context", "userId", ev.UserID, "err", err)
		history = nil
	}

	// Best-effort typing indicator while the completion call is in flight.
	if err := s.gateway.StartLoading(ctx, ev.UserID); err != nil {
		s.log.Warn("loading indicator failed", "userId", ev.UserID, "err", err)
	}

	answer := s.complete(ctx, history, ev.Text)

	if _, err := s.history.Append(ctx, ev.UserID, ev.Text, answer); err != nil {
		// The reply was already computed; a storage failure must not block
		// delivery.
		s.log.Error("failed to persist turn", "userId", ev.UserID, "err", err)
	}

	return []line.Message{line.NewTextMessage(answer)}
}

// countToday fetches the turn count in the current quota window, applying the
// configured fail mode on error.
func (s *ConversationService) countToday(ctx context.Context, userID string) int {
	start, end := DayWindow(s.now(), s.cfg.Location)
	count, err := s.history.CountSince(ctx, userID, start, end)
	if err == nil {
		return count
	}
	if s.cfg.FailMode == FailClosed {
		s.log.Warn("count fetch failed, failing closed", "userId", userID, "err", err)
		return s.cfg.Threshold
	}
	s.log.Warn("count fetch failed, failing open", "userId", userID, "err", err)
	return 0
}

// upsell creates a hosted checkout session and returns the upsell text plus
// card, or a plain apology when billing is unavailable.
func (s *ConversationService) upsell(ctx context.Context, userID string, count int) []line.Message {
	s.log.Info("quota reached, redirecting to checkout", "userId", userID, "countToday", count, "threshold", s.cfg.Threshold)

	checkoutURL, err := s.billing.CreateCheckoutSession(ctx, userID)
	if err != nil {
		s.log.Error("checkout session creation failed", "userId", userID, "err", err)
		return []line.Message{line.NewTextMessage(apologyReply)}
	}
	return []line.Message{
		line.NewTextMessage(upsellText),
		line.NewSubscriptionCard(checkoutURL),
	}
}

// complete calls the completion service once and maps any failure to the
// fixed fallback string. Nothing escapes this boundary: the user is always
// owed a reply.
func (s *ConversationService) complete(ctx context.Context, history []domain.Turn, text string) string {
	if err := s.ensureConfig(ctx); err != nil {
		s.log.Error("prompt config load failed", "err", err)
		return fallbackReply
	}

	answer, err := s.llm.Chat(ctx, s.model, buildPromptMessages(s.systemPrompt, history, text))
	if err != nil {
		s.log.Error("completion failed", "err", err)
		return fallbackReply
	}
	if strings.TrimSpace(answer) == "" {
		s.log.Error("completion returned empty answer")
		return fallbackReply
	}
	return answer
}

// ensureConfig lazily loads the system prompt and model name from SSM once
// per process lifetime.
func (s *ConversationService) ensureConfig(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	systemPrompt, err := s.params.GetParameter(ctx, s.cfg.PromptParam)
	if err != nil {
		return fmt.Errorf("usecase: load system prompt: %w", err)
	}
	model, err := s.params.GetParameter(ctx, s.cfg.ModelParam)
	if err != nil {
		return fmt.Errorf("usecase: load model: %w", err)
	}
	if strings.TrimSpace(systemPrompt) == "" || strings.TrimSpace(model) == "" {
		return errors.New("usecase: system prompt and model must not be empty")
	}

	s.systemPrompt = systemPrompt
	s.model = model
	s.cacheLoaded = true
	return nil
}

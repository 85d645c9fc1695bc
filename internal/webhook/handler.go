// Package webhook serves the LINE Messaging API channel. Text messages run
// through the same chat processor as the web channel.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/garyellow/visadesk/internal/bot"
	"github.com/garyellow/visadesk/internal/config"
	"github.com/garyellow/visadesk/internal/ctxutil"
	"github.com/garyellow/visadesk/internal/lineutil"
	"github.com/garyellow/visadesk/internal/logger"
	"github.com/garyellow/visadesk/internal/metrics"
	"github.com/garyellow/visadesk/internal/ratelimit"
	"github.com/garyellow/visadesk/internal/sentry"
)

// Channel labels messages that arrive over LINE.
const Channel = "line"

const (
	defaultMaxEvents           = 100
	defaultMinReplyTokenLength = 10
	loadingSeconds             = 20
)

// ChatProcessor answers one chat message.
type ChatProcessor interface {
	Process(ctx context.Context, in bot.Input) (*bot.Reply, error)
	Greeting() *bot.Reply
}

// Replier is the part of the Messaging API the handler calls.
type Replier interface {
	Reply(token string, messages []messaging_api.MessageInterface) error
	ShowLoading(chatID string, seconds int32) error
}

type lineReplier struct {
	api *messaging_api.MessagingApiAPI
}

func (r lineReplier) Reply(token string, messages []messaging_api.MessageInterface) error {
	_, err := r.api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: token,
		Messages:   messages,
	})
	return err
}

func (r lineReplier) ShowLoading(chatID string, seconds int32) error {
	_, err := r.api.ShowLoadingAnimation(&messaging_api.ShowLoadingAnimationRequest{
		ChatId:         chatID,
		LoadingSeconds: seconds,
	})
	return err
}

// Handler handles LINE webhook events.
type Handler struct {
	channelSecret string
	replier       Replier
	processor     ChatProcessor
	limiter       *ratelimit.Limiter
	logger        *logger.Logger
	metrics       *metrics.Metrics
	sender        *messaging_api.Sender
	wg            sync.WaitGroup

	timeout             time.Duration
	maxEvents           int
	minReplyTokenLength int
}

// HandlerConfig holds the required collaborators.
type HandlerConfig struct {
	ChannelSecret string
	ChannelToken  string
	Processor     ChatProcessor
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
	GlobalRateRPS float64
}

// NewHandler creates a handler. Without WithReplier it talks to the real
// Messaging API using ChannelToken.
func NewHandler(cfg HandlerConfig, opts ...HandlerOption) (*Handler, error) {
	if cfg.ChannelSecret == "" {
		return nil, errors.New("LINE channel secret is required")
	}
	rps := cfg.GlobalRateRPS
	if rps <= 0 {
		rps = 100
	}
	h := &Handler{
		channelSecret:       cfg.ChannelSecret,
		processor:           cfg.Processor,
		limiter:             ratelimit.New(rps, rps),
		logger:              cfg.Logger.WithModule("webhook"),
		metrics:             cfg.Metrics,
		timeout:             config.WebhookProcessing,
		maxEvents:           defaultMaxEvents,
		minReplyTokenLength: defaultMinReplyTokenLength,
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.replier == nil {
		client, err := messaging_api.NewMessagingApiAPI(cfg.ChannelToken)
		if err != nil {
			return nil, fmt.Errorf("create messaging API client: %w", err)
		}
		h.replier = lineReplier{api: client}
	}
	return h, nil
}

// Handle is the gin handler for POST /webhook. It answers 200 as soon as
// the signature checks out and processes events in the background.
func (h *Handler) Handle(c *gin.Context) {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.logger.Warn("Invalid webhook signature")
			h.metrics.RecordWebhook("batch", "invalid_signature", 0)
			c.Status(http.StatusBadRequest)
		} else {
			h.logger.WithError(err).Error("Failed to parse webhook request")
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	c.Status(http.StatusOK)
	h.metrics.RecordWebhook("batch", "received", 0)

	events := cb.Events
	if len(events) > h.maxEvents {
		h.logger.Warn("Too many events in webhook batch; truncating",
			"event_count", len(events),
			"limit", h.maxEvents)
		events = events[:h.maxEvents]
	}
	// The request is done once we return; keep our own copy.
	events = append([]webhook.EventInterface(nil), events...)

	requestID, _ := ctxutil.GetRequestID(c.Request.Context())
	h.wg.Go(func() {
		ctx := context.Background()
		if requestID != "" {
			ctx = ctxutil.WithRequestID(ctx, requestID)
		}
		defer sentry.Recover(ctx, "webhook-events")
		for _, event := range events {
			h.processEvent(ctx, event)
		}
	})
}

// event is the common shape of the events the handler answers.
type event struct {
	kind       string
	id         string
	replyToken string
	source     webhook.SourceInterface
	text       string
	follow     bool
}

// classify extracts what the handler needs from e. It returns false for
// events that get no reply.
func (h *Handler) classify(e webhook.EventInterface) (event, bool) {
	switch e := e.(type) {
	case webhook.MessageEvent:
		msg, ok := e.Message.(webhook.TextMessageContent)
		if !ok {
			return event{kind: "message"}, false
		}
		ev := event{kind: "message", id: e.WebhookEventId, replyToken: e.ReplyToken, source: e.Source, text: msg.Text}
		if !isPersonal(e.Source) {
			if !isBotMentioned(msg) {
				return ev, false
			}
			ev.text = removeBotMentions(msg.Text, msg.Mention)
		}
		return ev, true
	case webhook.FollowEvent:
		return event{kind: "follow", id: e.WebhookEventId, replyToken: e.ReplyToken, source: e.Source, follow: true}, true
	default:
		return event{kind: fmt.Sprintf("%T", e)}, false
	}
}

func (h *Handler) processEvent(ctx context.Context, e webhook.EventInterface) {
	start := time.Now()
	ev, ok := h.classify(e)
	if !ok {
		h.logger.DebugContext(ctx, "Ignoring webhook event", "event_type", ev.kind)
		return
	}

	chatID := chatID(ev.source)
	if chatID == "" {
		h.logger.DebugContext(ctx, "Event has no chat id", "event_type", ev.kind)
		return
	}
	user := userID(ev.source)
	sessionKey := SessionKey(chatID, user)
	if sessionKey == "" {
		// Group members who have not consented to profile access have no user id.
		h.logger.DebugContext(ctx, "Group event has no user id", "event_type", ev.kind)
		return
	}
	ctx = ctxutil.WithChatID(ctx, chatID)
	ctx = ctxutil.WithUserID(ctx, user)
	if ev.id != "" {
		ctx = ctxutil.WithRequestID(ctx, ev.id)
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.replier.ShowLoading(chatID, loadingSeconds); err != nil {
		h.logger.WithError(err).DebugContext(ctx, "Failed to show loading animation")
	}

	var (
		reply *bot.Reply
		err   error
	)
	if ev.follow {
		reply = h.processor.Greeting()
	} else {
		reply, err = h.processor.Process(ctx, bot.Input{
			SessionKey: sessionKey,
			ClientKey:  Channel + ":user:" + user,
			Channel:    Channel,
			Text:       ev.text,
		})
	}

	status := "success"
	if err != nil {
		status = "error"
		h.logger.WithError(err).ErrorContext(ctx, "Failed to handle event", "event_type", ev.kind)
		sentry.CaptureException(ctx, err, map[string]string{"event_type": ev.kind})
		reply = bot.NewReply(bot.IntentError, bot.ErrorText)
	}
	h.metrics.RecordWebhook(ev.kind, status, time.Since(start).Seconds())

	if reply == nil {
		return
	}
	h.send(ctx, ev, reply)
	h.logger.InfoContext(ctx, "Event processed",
		"event_type", ev.kind,
		"intent", reply.Intent,
		"duration_ms", time.Since(start).Milliseconds())
}

func (h *Handler) send(ctx context.Context, ev event, reply *bot.Reply) {
	if len(ev.replyToken) < h.minReplyTokenLength {
		h.logger.DebugContext(ctx, "Invalid reply token, skipping reply", "token_length", len(ev.replyToken))
		return
	}
	if !h.limiter.Allow() {
		h.logger.WarnContext(ctx, "Global rate limit exceeded; waiting")
		h.metrics.RecordRateLimiterDrop("global")
		if err := h.limiter.Wait(ctx); err != nil {
			return
		}
	}

	msg := lineutil.NewReplyMessage(reply.Text, reply.QuickReplies, h.sender)
	if err := h.replier.Reply(ev.replyToken, []messaging_api.MessageInterface{msg}); err != nil {
		if strings.Contains(err.Error(), "Invalid reply token") {
			h.logger.WithError(err).DebugContext(ctx, "Reply token already used or invalid")
		} else {
			h.logger.WithError(err).ErrorContext(ctx, "Failed to send reply")
		}
		h.metrics.RecordWebhook(ev.kind, "reply_error", 0)
	}
}

// SessionKey is the chat session for userID in chatID. A 1:1 chat is keyed
// on the user; in groups and rooms each member gets a session of their own,
// so one member's verification never binds another. It returns "" when a
// group event carries no user id.
func SessionKey(chatID, userID string) string {
	switch {
	case userID == "":
		return ""
	case chatID == userID:
		return Channel + ":" + userID
	default:
		return Channel + ":" + chatID + ":" + userID
	}
}

func isPersonal(source webhook.SourceInterface) bool {
	_, ok := source.(webhook.UserSource)
	return ok
}

// chatID identifies the conversation: the user, group or room.
func chatID(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.GroupId
	case webhook.RoomSource:
		return s.RoomId
	}
	return ""
}

func userID(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	}
	return ""
}

// Shutdown waits for in-flight events, or until ctx is done.
func (h *Handler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

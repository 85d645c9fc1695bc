package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/garyellow/visadesk/internal/config"
	"github.com/garyellow/visadesk/internal/ctxutil"
	domerrors "github.com/garyellow/visadesk/internal/errors"
	"github.com/garyellow/visadesk/internal/genai"
	"github.com/garyellow/visadesk/internal/identity"
	"github.com/garyellow/visadesk/internal/logger"
	"github.com/garyellow/visadesk/internal/metrics"
	"github.com/garyellow/visadesk/internal/ratelimit"
	"github.com/garyellow/visadesk/internal/storage"
	"github.com/garyellow/visadesk/internal/stringutil"
)

// DefaultMaxMessageLength is the longest accepted message, in characters.
const DefaultMaxMessageLength = 2000

// logoutKeywords end a verified conversation. Compared after lowercasing
// and trimming trailing punctuation.
var logoutKeywords = []string{"logout", "log out", "sign out", "start over"}

// Verifier checks identity for an unverified session.
type Verifier interface {
	Verify(ctx context.Context, a identity.Attempt) (*identity.Result, error)
}

// Answerer answers general questions from a knowledge base.
type Answerer interface {
	Answer(query string) (string, bool)
}

// ApplicationStore loads the application bound to a session.
type ApplicationStore interface {
	GetApplication(ctx context.Context, id string) (*storage.Application, error)
}

// Input is one inbound chat message. ClientKey identifies the sender
// across sessions (web client address, LINE user) for verification limits.
type Input struct {
	SessionKey string
	ClientKey  string
	Channel    string
	Text       string
}

// ProcessorConfig holds the processor's collaborators. FAQ, IntentParser
// and the limiters are optional.
type ProcessorConfig struct {
	Registry     *Registry
	Sessions     storage.SessionRepository
	Applications ApplicationStore
	Verifier     Verifier
	FAQ          Answerer
	IntentParser genai.IntentParser
	ChatLimiter  *ratelimit.KeyedLimiter
	LLMLimiter   *ratelimit.KeyedLimiter
	Logger       *logger.Logger
	Metrics      *metrics.Metrics

	MaxMessageLength int
	Timeout          time.Duration
}

// Processor runs the dialogue state machine: unverified sessions go through
// identity verification, verified ones through the intent pipeline.
type Processor struct {
	registry     *Registry
	sessions     storage.SessionRepository
	applications ApplicationStore
	verifier     Verifier
	faq          Answerer
	intentParser genai.IntentParser
	chatLimiter  *ratelimit.KeyedLimiter
	llmLimiter   *ratelimit.KeyedLimiter
	logger       *logger.Logger
	metrics      *metrics.Metrics

	maxLen  int
	timeout time.Duration
}

// NewProcessor creates a processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.ChatProcessing
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.New("info")
	}
	return &Processor{
		registry:     cfg.Registry,
		sessions:     cfg.Sessions,
		applications: cfg.Applications,
		verifier:     cfg.Verifier,
		faq:          cfg.FAQ,
		intentParser: cfg.IntentParser,
		chatLimiter:  cfg.ChatLimiter,
		llmLimiter:   cfg.LLMLimiter,
		logger:       cfg.Logger.WithModule("bot"),
		metrics:      cfg.Metrics,
		maxLen:       cfg.MaxMessageLength,
		timeout:      cfg.Timeout,
	}
}

// Greeting is the first message of every conversation.
func (p *Processor) Greeting() *Reply {
	return NewReply(IntentGreeting, GreetingText)
}

// NLUEnabled reports whether the LLM fallback is configured.
func (p *Processor) NLUEnabled() bool {
	return p.intentParser != nil && p.intentParser.IsEnabled()
}

// Process answers one message. Empty or whitespace-only text returns
// nil, nil and changes nothing.
func (p *Processor) Process(ctx context.Context, in Input) (*Reply, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, nil //nolint:nilnil // ignored message
	}

	start := time.Now()
	ctx = ctxutil.WithSessionKey(ctx, in.SessionKey)
	ctx = ctxutil.WithChannel(ctx, in.Channel)
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	reply, err := p.process(ctx, in, text)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordChatMessage(in.Channel, reply.Intent, time.Since(start).Seconds())
	return reply, nil
}

func (p *Processor) process(ctx context.Context, in Input, text string) (*Reply, error) {
	if n := utf8.RuneCountInString(text); n > p.maxLen {
		p.logger.WarnContext(ctx, "Message too long", "length", n)
		return NewReply(IntentTooLong, fmt.Sprintf(TooLongText, p.maxLen)), nil
	}

	if p.chatLimiter != nil && !p.chatLimiter.Allow(in.SessionKey) {
		p.logger.WarnContext(ctx, "Chat rate limit exceeded")
		reply := NewReply(IntentRateLimited, RateLimitedText)
		reply.RetryAfter = p.chatLimiter.RetryAfter(in.SessionKey)
		return reply, nil
	}

	if isLogout(text) {
		if err := p.sessions.ClearSession(ctx, in.SessionKey); err != nil {
			return nil, fmt.Errorf("logout: %w", err)
		}
		p.logger.InfoContext(ctx, "Session cleared")
		reply := p.Greeting()
		reply.Intent = IntentLogout
		return reply, nil
	}

	session, err := p.sessions.GetSession(ctx, in.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if err := p.sessions.TouchSession(ctx, in.SessionKey); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}

	if !session.Verified() {
		return p.verify(ctx, in, text)
	}

	app, err := p.applications.GetApplication(ctx, session.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("load application: %w", err)
	}
	if app == nil {
		// Bound application no longer exists.
		if err := p.sessions.ClearSession(ctx, in.SessionKey); err != nil {
			return nil, fmt.Errorf("clear stale session: %w", err)
		}
		return NewReply(IntentVerify, identity.NotFoundMessage), nil
	}

	reply := p.answer(ctx, in, app, text)
	reply.QuickReplies = QuickActions
	reply.ApplicationID = app.ID
	reply.Verified = true
	return reply, nil
}

func (p *Processor) verify(ctx context.Context, in Input, text string) (*Reply, error) {
	res, err := p.verifier.Verify(ctx, identity.Attempt{
		SessionKey: in.SessionKey,
		ClientKey:  in.ClientKey,
		Channel:    in.Channel,
		Input:      text,
	})
	if err != nil {
		return nil, fmt.Errorf("verify identity: %w", err)
	}

	switch {
	case res.Verified():
		if err := p.sessions.BindSession(ctx, in.SessionKey, res.Application.ID); err != nil {
			return nil, fmt.Errorf("bind session: %w", err)
		}
		return &Reply{
			Text:          res.Message,
			QuickReplies:  QuickActions,
			Intent:        IntentVerify,
			ApplicationID: res.Application.ID,
			Verified:      true,
		}, nil
	case res.Outcome == storage.OutcomeRateLimited:
		reply := NewReply(IntentRateLimited, res.Message)
		reply.RetryAfter = res.RetryAfter
		return reply, nil
	default:
		return NewReply(IntentVerify, res.Message), nil
	}
}

// loneKeyword is the evidence of a single strong keyword. A message with no
// more than that is offered to the FAQ before its keyword handler, so
// "When are you open?" is not taken as a timeline question.
const loneKeyword = 1.0

// answer runs the verified pipeline: keyword intents, FAQ, LLM, default.
func (p *Processor) answer(ctx context.Context, in Input, app *storage.Application, text string) *Reply {
	var (
		handler  Handler
		evidence float64
	)
	if p.registry != nil {
		handler, evidence = p.registry.Match(text)
	}

	if handler == nil || evidence <= loneKeyword {
		if reply := p.answerFAQ(ctx, text); reply != nil {
			return reply
		}
	}
	if handler != nil {
		if reply := p.registry.Run(ctx, handler, app, text); reply != nil {
			return reply
		}
	}

	if p.NLUEnabled() {
		if reply := p.handleWithNLU(ctx, in, app, text); reply != nil {
			return reply
		}
	}

	return p.defaultReply(app, text)
}

func (p *Processor) answerFAQ(ctx context.Context, text string) *Reply {
	if p.faq == nil {
		return nil
	}
	answer, ok := p.faq.Answer(text)
	if !ok {
		return nil
	}
	p.logger.DebugContext(ctx, "Answered from FAQ")
	return NewReply(IntentFAQ, answer)
}

func (p *Processor) handleWithNLU(ctx context.Context, in Input, app *storage.Application, text string) *Reply {
	if p.llmLimiter != nil && !p.llmLimiter.Allow(in.SessionKey) {
		p.logger.InfoContext(ctx, "LLM rate limit exceeded, using default reply")
		return nil
	}

	result, err := p.intentParser.Parse(ctx, text)
	if err != nil {
		p.logger.WithError(err).WarnContext(ctx, "NLU intent parsing failed")
		return nil
	}
	if result == nil {
		return nil
	}
	if result.IsDirectReply() {
		return NewReply(IntentClarification, result.Params["message"])
	}

	p.logger.DebugContext(ctx, "NLU intent parsed",
		"module", result.Module,
		"intent", result.Intent)
	return p.dispatchIntent(ctx, app, result)
}

func (p *Processor) dispatchIntent(ctx context.Context, app *storage.Application, result *genai.ParseResult) *Reply {
	if p.registry == nil {
		return nil
	}
	handler, ok := p.registry.GetHandler(result.Module).(NLUHandler)
	if !ok {
		p.logger.WarnContext(ctx, "Unknown module from NLU", "module", result.Module)
		return nil
	}
	reply, err := handler.DispatchIntent(ctx, app, result.Intent, result.Params)
	if err != nil {
		msg := "NLU dispatch failed"
		if errors.Is(err, domerrors.ErrUnknownIntent) {
			msg = "NLU returned unknown intent"
		}
		p.logger.WithError(err).WarnContext(ctx, msg,
			"module", result.Module,
			"intent", result.Intent)
		return nil
	}
	return reply
}

func (p *Processor) defaultReply(app *storage.Application, text string) *Reply {
	return NewReply(IntentDefault, fmt.Sprintf(DefaultTextFormat, text, stringutil.Humanize(app.VisaType)))
}

func isLogout(text string) bool {
	t := strings.ToLower(strings.TrimRight(text, ".!? "))
	return slices.Contains(logoutKeywords, t)
}

package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/visadesk/internal/bot"
	"github.com/garyellow/visadesk/internal/logger"
	"github.com/garyellow/visadesk/internal/metrics"
)

const testSecret = "test_channel_secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProcessor struct {
	mu     sync.Mutex
	inputs []bot.Input
	err    error
}

func (f *fakeProcessor) Greeting() *bot.Reply { return bot.NewReply(bot.IntentGreeting, bot.GreetingText) }

func (f *fakeProcessor) Process(_ context.Context, in bot.Input) (*bot.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	reply := bot.NewReply(bot.IntentDefault, "echo: "+in.Text)
	reply.QuickReplies = bot.QuickActions
	return reply, nil
}

type sentReply struct {
	token    string
	messages []messaging_api.MessageInterface
}

type fakeReplier struct {
	mu      sync.Mutex
	replies []sentReply
	loading []string
}

func (f *fakeReplier) Reply(token string, messages []messaging_api.MessageInterface) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, sentReply{token: token, messages: messages})
	return nil
}

func (f *fakeReplier) ShowLoading(chatID string, _ int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading = append(f.loading, chatID)
	return nil
}

func setupHandler(t *testing.T) (*Handler, *fakeProcessor, *fakeReplier, *gin.Engine) {
	t.Helper()
	proc := &fakeProcessor{}
	rep := &fakeReplier{}
	h, err := NewHandler(HandlerConfig{
		ChannelSecret: testSecret,
		ChannelToken:  "test_channel_token",
		Processor:     proc,
		Logger:        logger.NewWithWriter("error", io.Discard),
		Metrics:       metrics.New(prometheus.NewRegistry()),
	}, WithReplier(rep), WithSender("Visa Desk", ""))
	require.NoError(t, err)

	router := gin.New()
	router.POST("/webhook", h.Handle)
	return h, proc, rep, router
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func post(t *testing.T, h *Handler, router *gin.Engine, body string, signature string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", signature)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.NoError(t, h.Shutdown(t.Context()))
	return w.Code
}

const userTextEvent = `{"destination":"Ubot","events":[{"type":"message","mode":"active","timestamp":1700000000000,
"source":{"type":"user","userId":"U123"},"webhookEventId":"01HEVENT","deliveryContext":{"isRedelivery":false},
"replyToken":"replytoken-0123456789","message":{"type":"text","id":"1","quoteToken":"q","text":"WP-2024-1234"}}]}`

const groupEventFormat = `{"destination":"Ubot","events":[{"type":"message","mode":"active","timestamp":1700000000000,
"source":{"type":"group","groupId":"G456","userId":"U123"},"webhookEventId":"01HGROUP","deliveryContext":{"isRedelivery":false},
"replyToken":"replytoken-0123456789","message":{"type":"text","id":"2","quoteToken":"q","text":"@Bot my status"%s}}]}`

const followEvent = `{"destination":"Ubot","events":[{"type":"follow","mode":"active","timestamp":1700000000000,
"source":{"type":"user","userId":"U789"},"webhookEventId":"01HFOLLOW","deliveryContext":{"isRedelivery":false},
"replyToken":"replytoken-0123456789","follow":{"isUnblocked":false}}]}`

func TestNewHandler_RequiresSecret(t *testing.T) {
	_, err := NewHandler(HandlerConfig{Logger: logger.NewWithWriter("error", io.Discard)})
	assert.Error(t, err)
}

func TestHandle_InvalidSignature(t *testing.T) {
	t.Parallel()
	h, proc, rep, router := setupHandler(t)

	code := post(t, h, router, userTextEvent, "invalid_signature")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Empty(t, proc.inputs)
	assert.Empty(t, rep.replies)
}

func TestHandle_TextMessage(t *testing.T) {
	t.Parallel()
	h, proc, rep, router := setupHandler(t)

	code := post(t, h, router, userTextEvent, sign([]byte(userTextEvent)))
	require.Equal(t, http.StatusOK, code)

	require.Len(t, proc.inputs, 1)
	assert.Equal(t, bot.Input{SessionKey: "line:U123", ClientKey: "line:user:U123", Channel: Channel, Text: "WP-2024-1234"}, proc.inputs[0])
	assert.Equal(t, []string{"U123"}, rep.loading)

	require.Len(t, rep.replies, 1)
	assert.Equal(t, "replytoken-0123456789", rep.replies[0].token)
	msg, ok := rep.replies[0].messages[0].(*messaging_api.TextMessage)
	require.True(t, ok)
	assert.Equal(t, "echo: WP-2024-1234", msg.Text)
	require.NotNil(t, msg.QuickReply)
	assert.Len(t, msg.QuickReply.Items, len(bot.QuickActions))
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "Visa Desk", msg.Sender.Name)
}

func TestHandle_GroupRequiresMention(t *testing.T) {
	t.Parallel()

	t.Run("Without mention", func(t *testing.T) {
		h, proc, rep, router := setupHandler(t)
		body := fmtGroup("")
		require.Equal(t, http.StatusOK, post(t, h, router, body, sign([]byte(body))))
		assert.Empty(t, proc.inputs)
		assert.Empty(t, rep.replies)
	})

	t.Run("With mention", func(t *testing.T) {
		h, proc, rep, router := setupHandler(t)
		body := fmtGroup(`,"mention":{"mentionees":[{"type":"user","index":0,"length":4,"userId":"Ubot","isSelf":true}]}`)
		require.Equal(t, http.StatusOK, post(t, h, router, body, sign([]byte(body))))
		require.Len(t, proc.inputs, 1)
		assert.Equal(t, "line:G456:U123", proc.inputs[0].SessionKey)
		assert.Equal(t, "my status", proc.inputs[0].Text)
		assert.Len(t, rep.replies, 1)
	})
}

func TestHandle_FollowGetsGreeting(t *testing.T) {
	t.Parallel()
	h, proc, rep, router := setupHandler(t)

	require.Equal(t, http.StatusOK, post(t, h, router, followEvent, sign([]byte(followEvent))))
	assert.Empty(t, proc.inputs)
	require.Len(t, rep.replies, 1)
	msg := rep.replies[0].messages[0].(*messaging_api.TextMessage)
	assert.Equal(t, bot.GreetingText, msg.Text)
}

func TestHandle_ProcessorErrorRepliesWithApology(t *testing.T) {
	t.Parallel()
	h, proc, rep, router := setupHandler(t)
	proc.err = errors.New("database is locked")

	require.Equal(t, http.StatusOK, post(t, h, router, userTextEvent, sign([]byte(userTextEvent))))
	require.Len(t, rep.replies, 1)
	msg := rep.replies[0].messages[0].(*messaging_api.TextMessage)
	assert.Equal(t, bot.ErrorText, msg.Text)
}

func TestHandle_EmptyBatch(t *testing.T) {
	t.Parallel()
	h, proc, rep, router := setupHandler(t)
	body := `{"destination":"Ubot","events":[]}`

	assert.Equal(t, http.StatusOK, post(t, h, router, body, sign([]byte(body))))
	assert.Empty(t, proc.inputs)
	assert.Empty(t, rep.replies)
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()
	h, _, _, _ := setupHandler(t)
	require.NoError(t, h.Shutdown(t.Context()))
	require.NoError(t, h.Shutdown(t.Context()))
}

func TestHandle_GroupMembersHaveSeparateSessions(t *testing.T) {
	t.Parallel()
	h, proc, rep, router := setupHandler(t)

	mention := `,"mention":{"mentionees":[{"type":"user","index":0,"length":4,"userId":"Ubot","isSelf":true}]}`
	body := fmt.Sprintf(`{"destination":"Ubot","events":[
{"type":"message","mode":"active","timestamp":1700000000000,"source":{"type":"group","groupId":"G456","userId":"U123"},
"webhookEventId":"01HA","deliveryContext":{"isRedelivery":false},"replyToken":"replytoken-0123456789",
"message":{"type":"text","id":"3","quoteToken":"q","text":"@Bot WP-2024-1234"%[1]s}},
{"type":"message","mode":"active","timestamp":1700000000001,"source":{"type":"group","groupId":"G456","userId":"U999"},
"webhookEventId":"01HB","deliveryContext":{"isRedelivery":false},"replyToken":"replytoken-9876543210",
"message":{"type":"text","id":"4","quoteToken":"q","text":"@Bot my status"%[1]s}},
{"type":"message","mode":"active","timestamp":1700000000002,"source":{"type":"group","groupId":"G456"},
"webhookEventId":"01HC","deliveryContext":{"isRedelivery":false},"replyToken":"replytoken-5555555555",
"message":{"type":"text","id":"5","quoteToken":"q","text":"@Bot my status"%[1]s}}]}`, mention)

	require.Equal(t, http.StatusOK, post(t, h, router, body, sign([]byte(body))))

	keys := map[string]string{}
	for _, in := range proc.inputs {
		keys[in.Text] = in.SessionKey
	}
	require.Len(t, proc.inputs, 2, "events without a user id are dropped")
	assert.Equal(t, "line:G456:U123", keys["WP-2024-1234"])
	assert.Equal(t, "line:G456:U999", keys["my status"])
	assert.Len(t, rep.replies, 2)
}

func TestSessionKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "line:U123", SessionKey("U123", "U123"))
	assert.Equal(t, "line:G456:U123", SessionKey("G456", "U123"))
	assert.Equal(t, "line:R789:U123", SessionKey("R789", "U123"))
	assert.Empty(t, SessionKey("G456", ""))
}

func fmtGroup(mention string) string {
	return fmt.Sprintf(groupEventFormat, mention)
}

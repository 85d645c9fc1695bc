package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyellow/visadesk/internal/bot"
	domerrors "github.com/garyellow/visadesk/internal/errors"
)

// ChannelWeb labels messages that arrive through the HTTP chat.
const ChannelWeb = "web"

// SessionResponse is returned when a chat session is opened.
type SessionResponse struct {
	SessionID string     `json:"session_id"`
	Reply     *bot.Reply `json:"reply"`
}

type messageRequest struct {
	Text *string `json:"text"`
}

func webSessionKey(id string) string { return ChannelWeb + ":" + id }

func webClientKey(c *gin.Context) string { return "ip:" + c.ClientIP() }

func setRetryAfter(c *gin.Context, d time.Duration) {
	secs := int(math.Ceil(d.Seconds()))
	c.Header("Retry-After", strconv.Itoa(max(secs, 1)))
}

func (s *Server) createSession(c *gin.Context) {
	client := webClientKey(c)
	if s.sessionLimiter != nil && !s.sessionLimiter.Allow(client) {
		s.logger.WarnContext(c.Request.Context(), "Session creation rate limit exceeded")
		setRetryAfter(c, s.sessionLimiter.RetryAfter(client))
		writeError(c, http.StatusTooManyRequests, "too many new chat sessions, please try again later")
		return
	}

	id := uuid.NewString()
	if err := s.store.CreateSession(c.Request.Context(), webSessionKey(id)); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, SessionResponse{
		SessionID: id,
		Reply:     s.processor.Greeting(),
	})
}

func (s *Server) postMessage(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		s.abortWithError(c, domerrors.NewValidationError("id", "session id must be a UUID"))
		return
	}

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == nil {
		s.abortWithError(c, domerrors.NewValidationError("text", "text is required"))
		return
	}

	key := webSessionKey(id)
	session, err := s.store.GetSession(c.Request.Context(), key)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if session == nil {
		writeError(c, http.StatusNotFound, "chat session not found or expired")
		return
	}

	reply, err := s.processor.Process(c.Request.Context(), bot.Input{
		SessionKey: key,
		ClientKey:  webClientKey(c),
		Channel:    ChannelWeb,
		Text:       *req.Text,
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if reply == nil {
		c.Status(http.StatusNoContent)
		return
	}

	if reply.Intent == bot.IntentRateLimited {
		setRetryAfter(c, reply.RetryAfter)
		c.JSON(http.StatusTooManyRequests, reply)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// Package api is the JSON HTTP surface: web chat, the staff dashboard,
// application records and letters.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyellow/visadesk/internal/bot"
	"github.com/garyellow/visadesk/internal/dashboard"
	"github.com/garyellow/visadesk/internal/letters"
	"github.com/garyellow/visadesk/internal/logger"
	"github.com/garyellow/visadesk/internal/metrics"
	"github.com/garyellow/visadesk/internal/ratelimit"
	"github.com/garyellow/visadesk/internal/storage"
)

// ChatProcessor answers chat messages.
type ChatProcessor interface {
	Process(ctx context.Context, in bot.Input) (*bot.Reply, error)
	Greeting() *bot.Reply
}

// Notifier renders and queues letters.
type Notifier interface {
	Preview(ctx context.Context, kind letters.Kind, appID string) (*letters.Letter, error)
	Notify(ctx context.Context, kind letters.Kind, appID, dedupeKey string) (*storage.Notification, bool, error)
	OnStatusChange(ctx context.Context, change *storage.StatusChange) ([]*storage.Notification, error)
}

// DashboardBuilder builds the staff overview.
type DashboardBuilder interface {
	Build(ctx context.Context) (*dashboard.Dashboard, error)
}

// Store is the read/write surface behind the application routes.
type Store interface {
	storage.ApplicationRepository
	ListVerificationAttempts(ctx context.Context, limit int) ([]storage.VerificationAttempt, error)
	ListNotifications(ctx context.Context, appID string, limit int) ([]*storage.Notification, error)
	CreateSession(ctx context.Context, key string) error
	GetSession(ctx context.Context, key string) (*storage.Session, error)
}

// Config wires a Server.
type Config struct {
	Processor ChatProcessor
	Store     Store
	Dashboard DashboardBuilder
	Notifier  Notifier
	Logger    *logger.Logger
	Metrics   *metrics.Metrics

	// SessionLimiter bounds new web chat sessions per client address.
	// Optional.
	SessionLimiter *ratelimit.KeyedLimiter

	// NotifyOnStatusChange queues letters after staff status updates.
	NotifyOnStatusChange bool

	StaffUsername string
	StaffPassword string
}

// Server holds the route handlers.
type Server struct {
	processor      ChatProcessor
	store          Store
	dashboard      DashboardBuilder
	notifier       Notifier
	sessionLimiter *ratelimit.KeyedLimiter
	logger         *logger.Logger
	metrics        *metrics.Metrics
	notifyOnChange bool
	staffUser      string
	staffPass      string
	now            func() time.Time
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logger.New("info")
	}
	return &Server{
		processor:      cfg.Processor,
		store:          cfg.Store,
		dashboard:      cfg.Dashboard,
		notifier:       cfg.Notifier,
		sessionLimiter: cfg.SessionLimiter,
		logger:         cfg.Logger.WithModule("api"),
		metrics:        cfg.Metrics,
		notifyOnChange: cfg.NotifyOnStatusChange,
		staffUser:      cfg.StaffUsername,
		staffPass:      cfg.StaffPassword,
		now:            time.Now,
	}
}

// Register mounts every route under /api.
func (s *Server) Register(r gin.IRouter) {
	g := r.Group("/api")

	chat := g.Group("/chat/sessions")
	chat.POST("", s.createSession)
	chat.POST("/:id/messages", s.postMessage)

	g.GET("/dashboard", s.getDashboard)
	g.GET("/applications", s.listApplications)
	g.GET("/applications/:id", s.getApplication)
	g.GET("/applications/:id/notifications", s.listNotifications)
	g.GET("/audit/verifications", s.listVerifications)
	g.GET("/letters/types", s.letterTypes)

	staff := g.Group("", BasicAuth("staff", true, s.staffUser, s.staffPass))
	staff.GET("/applications/lookup", s.lookupApplication)
	staff.PUT("/applications/:id/status", s.updateStatus)
	staff.POST("/applications/:id/documents/:docID/received", s.markDocumentReceived)
	staff.POST("/letters/preview", s.previewLetter)
	staff.POST("/letters/send", s.sendLetter)
}

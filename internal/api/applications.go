package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	domerrors "github.com/garyellow/visadesk/internal/errors"
	"github.com/garyellow/visadesk/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// StatusChangeResponse reports a staff update and the letters it queued.
type StatusChangeResponse struct {
	Application   *storage.Application    `json:"application"`
	From          string                  `json:"from"`
	To            string                  `json:"to"`
	StatusChanged bool                    `json:"status_changed"`
	Notifications []*storage.Notification `json:"notifications"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) getDashboard(c *gin.Context) {
	d, err := s.dashboard.Build(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) listApplications(c *gin.Context) {
	apps, err := s.store.ListApplications(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": apps})
}

// lookupApplication finds an application by applicant name and date of
// birth, for callers who have lost their application ID.
func (s *Server) lookupApplication(c *gin.Context) {
	name, dob := c.Query("name"), c.Query("dob")
	if name == "" || dob == "" {
		writeError(c, http.StatusBadRequest, "name and dob are required")
		return
	}
	app, err := s.store.FindApplicationByNameAndDOB(c.Request.Context(), name, dob)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if app == nil {
		writeError(c, http.StatusNotFound, "no application matches that name and date of birth")
		return
	}
	c.JSON(http.StatusOK, app)
}

// loadApplication writes a 404 and returns nil when the id is unknown.
func (s *Server) loadApplication(c *gin.Context) *storage.Application {
	id := c.Param("id")
	app, err := s.store.GetApplication(c.Request.Context(), id)
	if err != nil {
		s.abortWithError(c, err)
		return nil
	}
	if app == nil {
		writeError(c, http.StatusNotFound, "application "+id+" not found")
		return nil
	}
	return app
}

func (s *Server) getApplication(c *gin.Context) {
	if app := s.loadApplication(c); app != nil {
		c.JSON(http.StatusOK, app)
	}
}

func (s *Server) listNotifications(c *gin.Context) {
	app := s.loadApplication(c)
	if app == nil {
		return
	}
	limit, err := parseLimit(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	list, err := s.store.ListNotifications(c.Request.Context(), app.ID, limit)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

func (s *Server) listVerifications(c *gin.Context) {
	limit, err := parseLimit(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	list, err := s.store.ListVerificationAttempts(c.Request.Context(), limit)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": list})
}

func (s *Server) updateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		s.abortWithError(c, domerrors.NewValidationError("status", "status is required"))
		return
	}

	change, err := s.store.UpdateApplicationStatus(c.Request.Context(), c.Param("id"), req.Status, s.now())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	s.logger.InfoContext(c.Request.Context(), "Application status updated",
		"application_id", change.Application.ID,
		"from", change.From,
		"to", change.To)
	c.JSON(http.StatusOK, s.afterChange(c, change))
}

func (s *Server) markDocumentReceived(c *gin.Context) {
	change, err := s.store.MarkDocumentReceived(c.Request.Context(), c.Param("id"), c.Param("docID"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.afterChange(c, change))
}

// afterChange queues status letters when enabled. A failure to queue is
// logged; the committed change is still reported.
func (s *Server) afterChange(c *gin.Context, change *storage.StatusChange) StatusChangeResponse {
	resp := StatusChangeResponse{
		Application:   change.Application,
		From:          change.From,
		To:            change.To,
		StatusChanged: change.Changed(),
		Notifications: []*storage.Notification{},
	}
	if !s.notifyOnChange || !change.Changed() || s.notifier == nil {
		return resp
	}
	queued, err := s.notifier.OnStatusChange(c.Request.Context(), change)
	if err != nil {
		s.logger.WithError(err).WarnContext(c.Request.Context(), "Failed to queue status letters",
			"application_id", change.Application.ID)
	}
	if queued != nil {
		resp.Notifications = queued
	}
	return resp
}

func parseLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, domerrors.NewValidationError("limit", "limit must be a positive integer")
	}
	return min(n, maxListLimit), nil
}

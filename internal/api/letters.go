package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	domerrors "github.com/garyellow/visadesk/internal/errors"
	"github.com/garyellow/visadesk/internal/letters"
)

// LetterType describes one letter template.
type LetterType struct {
	Type  letters.Kind `json:"type"`
	Label string       `json:"label"`
}

type letterRequest struct {
	Type          string `json:"type"`
	ApplicationID string `json:"application_id"`
}

func (r *letterRequest) validate() (letters.Kind, error) {
	if r.ApplicationID == "" {
		return "", domerrors.NewValidationError("application_id", "application_id is required")
	}
	if r.Type == "" {
		return "", domerrors.NewValidationError("type", "type is required")
	}
	return letters.ParseKind(r.Type)
}

func (s *Server) letterTypes(c *gin.Context) {
	kinds := letters.Kinds()
	types := make([]LetterType, 0, len(kinds))
	for _, k := range kinds {
		types = append(types, LetterType{Type: k, Label: k.Label()})
	}
	c.JSON(http.StatusOK, gin.H{"types": types})
}

func (s *Server) bindLetter(c *gin.Context) (letters.Kind, string, bool) {
	var req letterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, domerrors.NewValidationError("body", "invalid JSON body"))
		return "", "", false
	}
	kind, err := req.validate()
	if err != nil {
		s.abortWithError(c, err)
		return "", "", false
	}
	return kind, req.ApplicationID, true
}

func (s *Server) previewLetter(c *gin.Context) {
	kind, appID, ok := s.bindLetter(c)
	if !ok {
		return
	}
	letter, err := s.notifier.Preview(c.Request.Context(), kind, appID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, letter)
}

func (s *Server) sendLetter(c *gin.Context) {
	kind, appID, ok := s.bindLetter(c)
	if !ok {
		return
	}
	n, _, err := s.notifier.Notify(c.Request.Context(), kind, appID, "")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, n)
}

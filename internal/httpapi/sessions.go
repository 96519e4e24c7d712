package httpapi

import (
	"net/http"
	"strings"

	"dataroom/internal/access"
	"dataroom/internal/viewer"

	"github.com/gin-gonic/gin"
)

// OpenSession runs a VIEW decision and opens a restricted viewer session.
func (h Handlers) OpenSession(c *gin.Context) {
	subj, ok := subject(c)
	if !ok {
		return
	}
	s, d, err := h.Viewer.Open(c.Request.Context(), subj, c.Param("room_id"), c.Param("document_id"))
	if err != nil {
		respondError(c, d, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"decision": d, "session": s.Snapshot()})
}

// ownSession resolves the session and hides sessions of other subjects.
func (h Handlers) ownSession(c *gin.Context, subj access.Subject) (*viewer.Session, bool) {
	s, err := h.Viewer.Get(c.Param("session_id"))
	if err != nil || !strings.EqualFold(s.Identity(), subj.Identity) {
		respondError(c, access.Decision{}, viewer.ErrSessionNotFound)
		return nil, false
	}
	return s, true
}

func (h Handlers) GetSession(c *gin.Context) {
	subj, ok := subject(c)
	if !ok {
		return
	}
	s, ok := h.ownSession(c, subj)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

type interactionRequest struct {
	Kind string `json:"kind"`
}

func (h Handlers) Interact(c *gin.Context) {
	subj, ok := subject(c)
	if !ok {
		return
	}
	var req interactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	kind, err := viewer.ParseInteraction(strings.ToUpper(strings.TrimSpace(req.Kind)))
	if err != nil {
		respondError(c, access.Decision{}, err)
		return
	}
	s, ok := h.ownSession(c, subj)
	if !ok {
		return
	}
	snap, err := s.Interact(c.Request.Context(), kind)
	if err != nil {
		respondError(c, access.Decision{}, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h Handlers) CloseSession(c *gin.Context) {
	subj, ok := subject(c)
	if !ok {
		return
	}
	s, ok := h.ownSession(c, subj)
	if !ok {
		return
	}
	if err := s.Close(c.Request.Context()); err != nil {
		respondError(c, access.Decision{}, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

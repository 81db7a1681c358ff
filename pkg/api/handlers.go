package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/potto-labs/potto/pkg/models"
	"github.com/potto-labs/potto/pkg/session"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message" binding:"required"`
}

type resumeRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// turnResponse is the payload every turn-producing endpoint returns.
type turnResponse struct {
	SessionID     string               `json:"session_id"`
	Presentation  *models.Presentation `json:"presentation"`
	AwaitingInput bool                 `json:"awaiting_input"`
	Timings       map[string]float64   `json:"timings,omitempty"`
}

func newTurnResponse(sessionID string, st *models.TurnState) turnResponse {
	return turnResponse{
		SessionID:     sessionID,
		Presentation:  st.Presentation,
		AwaitingInput: st.AwaitingUserInput(),
		Timings:       st.Timings,
	}
}

// handleChat runs one full turn. When the engine suspends on an
// interactive prompt, the paused state is parked on the session and the
// client answers via the resume endpoint.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	var sess *session.Session
	if req.SessionID != "" {
		sess = s.sessions.GetOrCreate(req.SessionID, req.UserID)
	} else {
		sess = s.sessions.Create(req.UserID)
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	if err := s.sessions.Begin(sess.ID, cancel); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	st := models.NewTurnState(sess.ID, req.Message)
	err := s.engine.Run(ctx, &st, nil)
	s.sessions.Finish(sess.ID, &st)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, newTurnResponse(sess.ID, &st))
}

// handleResume answers the interactive prompt a previous turn paused on.
func (s *Server) handleResume(c *gin.Context) {
	id := c.Param("id")
	var req resumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "answer is required"})
		return
	}

	st, err := s.sessions.TakePaused(id)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, session.ErrNotPaused):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	if err := s.sessions.Begin(id, cancel); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	err = s.engine.Resume(ctx, st, req.Answer, nil)
	s.sessions.Finish(id, st)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, newTurnResponse(id, st))
}

func (s *Server) handleCancel(c *gin.Context) {
	id := c.Param("id")
	if err := s.sessions.Cancel(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) handleTranscript(c *gin.Context) {
	id := c.Param("id")
	transcript, err := s.sessions.Transcript(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "messages": transcript})
}

func (s *Server) handleSuggestions(c *gin.Context) {
	suggestions := s.memory.SmartSuggest(c.Query("hint"))
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mentorgo/internal/models"
)

type chatRequest struct {
	Message string `json:"message" validate:"required"`
	Title   string `json:"title" validate:"max=200"`
}

type startSessionRequest struct {
	Title    string          `json:"title" validate:"max=200"`
	ChatMode models.ChatMode `json:"chat_mode" validate:"omitempty,chat_mode"`
}

type endSessionRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=64"`
}

type renameSessionRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

// chat runs one turn. Model failures never surface here; the reply falls
// back to a template once the user message is stored.
func (h *Handler) chat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req chatRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	result, err := h.assistant.ChatTurn(c.Request.Context(), userID, req.Message, req.Title)
	if err != nil {
		h.writeError(c, err, "failed to process message")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) startSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req startSessionRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	session, err := h.assistant.StartSession(c.Request.Context(), userID, req.Title, req.ChatMode)
	if err != nil {
		h.writeError(c, err, "failed to start session")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": session.ID,
		"title":     session.Title,
		"chatMode":  session.ChatMode,
		"status":    session.Status,
		"startedAt": session.StartedAt,
	})
}

func (h *Handler) endSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req endSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id is required"})
		return
	}
	session, summary, err := h.assistant.EndSession(c.Request.Context(), userID, req.SessionID)
	if err != nil {
		h.writeError(c, err, "failed to end session")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "session ended successfully",
		"session_id": session.ID,
		"ended_at":   session.EndedAt,
		"summary":    summary,
	})
}

func (h *Handler) renameSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req renameSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.assistant.RenameSession(c.Request.Context(), userID, c.Param("session_id"), req.Title)
	if err != nil {
		h.writeError(c, err, "failed to rename session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": session.ID, "title": session.Title})
}

func (h *Handler) sessionMessages(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	messages, err := h.assistant.SessionMessages(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		h.writeError(c, err, "failed to fetch session messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": nonNilMessages(messages)})
}

// conversation returns the active session's history, or the most recent
// messages across sessions when nothing is active.
func (h *Handler) conversation(c *gin.Context) {
	userID := c.Param("id")
	messages, sessionID, err := h.assistant.History(c.Request.Context(), userID, c.Query("session_id"))
	if err != nil {
		h.writeError(c, err, "failed to load conversation")
		return
	}
	var sid any
	if sessionID != "" {
		sid = sessionID
	}
	c.JSON(http.StatusOK, gin.H{
		"messages":  nonNilMessages(messages),
		"sessionId": sid,
	})
}

func (h *Handler) listSessions(c *gin.Context) {
	sessions, err := h.assistant.ListSessions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to fetch sessions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func nonNilMessages(messages []models.Message) []models.Message {
	if messages == nil {
		return make([]models.Message, 0)
	}
	return messages
}

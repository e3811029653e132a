package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mentorgo/internal/analytics"
	"mentorgo/internal/models"
	"mentorgo/internal/service/assistant"
)

const (
	defaultSummaryLimit = 5
	maxSummaryLimit     = 100
	maxMoodDays         = 365
)

func (h *Handler) userAnalytics(c *gin.Context) {
	stats, err := h.analytics.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to fetch analytics")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) moodData(c *gin.Context) {
	days, ok := queryInt(c, "days", analytics.DefaultMoodDays, maxMoodDays)
	if !ok {
		return
	}
	points, err := h.analytics.MoodData(c.Request.Context(), c.Param("id"), days)
	if err != nil {
		h.writeError(c, err, "failed to fetch mood data")
		return
	}
	c.JSON(http.StatusOK, points)
}

func (h *Handler) chatSummaries(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultSummaryLimit, maxSummaryLimit)
	if !ok {
		return
	}
	summaries, err := h.assistant.ListSummaries(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.writeError(c, err, "failed to fetch chat summaries")
		return
	}
	if summaries == nil {
		summaries = make([]models.Summary, 0)
	}
	c.JSON(http.StatusOK, summaries)
}

// queryInt reads a positive integer query parameter, writing a 400 when it
// is malformed or out of range.
func queryInt(c *gin.Context, key string, def, upper int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > upper {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return 0, false
	}
	return v, true
}

type feedbackRequest struct {
	Rating      *int   `json:"rating" validate:"required,min=1,max=5"`
	Feedback    string `json:"feedback" validate:"max=1000"`
	Suggestions string `json:"suggestions" validate:"max=1000"`
	Category    string `json:"category" validate:"max=100"`
	SessionID   string `json:"sessionId" validate:"max=64"`
}

func (h *Handler) submitFeedback(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req feedbackRequest
	if !bindJSON(c, &req) {
		return
	}
	fb, err := h.assistant.SubmitFeedback(c.Request.Context(), userID, assistant.FeedbackInput{
		SessionID:   req.SessionID,
		Rating:      *req.Rating,
		Comments:    req.Feedback,
		Suggestions: req.Suggestions,
		Category:    req.Category,
	})
	if err != nil {
		h.writeError(c, err, "an error occurred while submitting feedback")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":     "thank you for your feedback",
		"feedback_id": fb.ID,
		"session_id":  fb.SessionID,
	})
}

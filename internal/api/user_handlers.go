package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mentorgo/internal/auth"
	"mentorgo/internal/logger"
	"mentorgo/internal/models"
	"mentorgo/internal/service/assistant"
)

type signupRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	Name     string `json:"name" validate:"max=1000"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

func (h *Handler) signup(c *gin.Context) {
	var req signupRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.assistant.RegisterUser(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.writeError(c, err, "an error occurred during signup")
		return
	}
	authToken, ok := h.startAuthSession(c, user.ID)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"user_id":    user.ID,
		"email":      user.Email,
		"auth_token": authToken,
		"message":    "account created successfully",
	})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	clientIP := c.ClientIP()
	if h.throttle != nil {
		locked, retry, err := h.throttle.Locked(ctx, req.Email, clientIP)
		if err != nil {
			h.logger.Warn("login_throttle_unavailable", zap.Error(err))
		}
		if locked {
			seconds := int(retry.Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many failed login attempts",
				"retry_after": seconds,
			})
			return
		}
	}

	user, err := h.assistant.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, assistant.ErrInvalidCredentials) && h.throttle != nil {
			if ferr := h.throttle.Fail(ctx, req.Email, clientIP); ferr != nil {
				h.logger.Warn("login_throttle_unavailable", zap.Error(ferr))
			}
			h.logger.Warn("login_failed", zap.String("client_ip", logger.SanitizeString(clientIP, 64)))
		}
		h.writeError(c, err, "an error occurred during login")
		return
	}
	if h.throttle != nil {
		if err := h.throttle.Succeed(ctx, req.Email, clientIP); err != nil {
			h.logger.Warn("login_throttle_unavailable", zap.Error(err))
		}
	}

	authToken, ok := h.startAuthSession(c, user.ID)
	if !ok {
		return
	}
	profile, err := h.assistant.GetProfile(ctx, user.ID)
	if err != nil {
		h.writeError(c, err, "an error occurred during login")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":     user.ID,
		"email":       user.Email,
		"screen_name": profile.ScreenName,
		"auth_token":  authToken,
		"message":     "login successful",
	})
}

// startAuthSession issues a token and sets the auth and CSRF cookies.
func (h *Handler) startAuthSession(c *gin.Context, userID string) (string, bool) {
	authToken, err := h.auth.IssueToken(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("issue_token_failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return "", false
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return "", false
	}
	h.auth.SetAuthCookies(c, authToken, csrfToken)
	return authToken, true
}

func (h *Handler) currentUser(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	user, err := h.assistant.GetUser(ctx, userID)
	if err != nil {
		h.writeError(c, err, "failed to load user")
		return
	}
	profile, err := h.assistant.GetProfile(ctx, userID)
	if err != nil {
		h.writeError(c, err, "failed to load user")
		return
	}
	prefs, err := h.assistant.GetPreferences(ctx, userID)
	if err != nil {
		h.writeError(c, err, "failed to load user")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":     user.ID,
		"email":       user.Email,
		"auth_method": user.AuthMethod,
		"is_verified": user.IsVerified,
		"created_at":  user.CreatedAt,
		"last_login":  user.LastLogin,
		"profile":     profile,
		"preferences": prefs,
	})
}

func (h *Handler) logout(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		if err := h.auth.RevokeToken(c.Request.Context(), authToken); err != nil {
			h.logger.Warn("revoke_token_failed", zap.String("user_id", logger.SanitizeID(userID)), zap.Error(err))
		}
	}
	h.auth.ClearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=128"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=128"`
}

func (h *Handler) changePassword(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.assistant.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeError(c, err, "failed to change password")
		return
	}
	// Every other login ends with the old password; the caller gets a fresh token.
	if err := h.auth.RevokeUserTokens(c.Request.Context(), userID); err != nil {
		h.writeError(c, err, "failed to change password")
		return
	}
	authToken, ok := h.startAuthSession(c, userID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated successfully", "auth_token": authToken})
}

type changeEmailRequest struct {
	NewEmail string `json:"new_email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

func (h *Handler) changeEmail(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req changeEmailRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.assistant.ChangeEmail(c.Request.Context(), userID, req.NewEmail, req.Password); err != nil {
		h.writeError(c, err, "failed to change email")
		return
	}
	user, err := h.assistant.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err, "failed to change email")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "email updated successfully", "email": user.Email})
}

type profileRequest struct {
	ScreenName *string  `json:"screen_name" validate:"omitempty,max=1000"`
	Pronouns   *string  `json:"pronouns" validate:"omitempty,max=100"`
	Goals      *string  `json:"goals" validate:"omitempty,max=1000"`
	FocusAreas []string `json:"focus_areas" validate:"omitempty,max=20,dive,max=200"`
}

func (h *Handler) updateProfile(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req profileRequest
	if !bindJSON(c, &req) {
		return
	}
	profile, err := h.assistant.UpdateProfile(c.Request.Context(), userID, assistant.ProfileUpdate{
		ScreenName:    req.ScreenName,
		Pronouns:      req.Pronouns,
		IdentityGoals: req.Goals,
		FocusAreas:    req.FocusAreas,
	})
	if err != nil {
		h.writeError(c, err, "failed to update profile")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "profile updated successfully", "profile": profile})
}

type preferencesRequest struct {
	ResponseLength     *models.ResponseLength `json:"preferred_response_length" validate:"omitempty,response_length"`
	CommunicationStyle *string                `json:"preferred_communication_style" validate:"omitempty,max=1000"`
}

func (h *Handler) updatePreferences(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req preferencesRequest
	if !bindJSON(c, &req) {
		return
	}
	prefs, err := h.assistant.UpdatePreferences(c.Request.Context(), userID, assistant.PreferencesUpdate{
		ResponseLength:     req.ResponseLength,
		CommunicationStyle: req.CommunicationStyle,
	})
	if err != nil {
		h.writeError(c, err, "failed to update preferences")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "preferences updated successfully", "preferences": prefs})
}

func (h *Handler) deleteUser(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.auth.RevokeUserTokens(c.Request.Context(), userID); err != nil {
		h.writeError(c, err, "failed to delete user")
		return
	}
	if err := h.assistant.DeleteUser(c.Request.Context(), userID); err != nil {
		h.writeError(c, err, "failed to delete user")
		return
	}
	h.auth.ClearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

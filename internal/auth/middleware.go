package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// API clients send "Authorization: Bearer <token>". Browsers carry the same
// token in the http-only auth_token cookie and must pass CSRFMiddleware on
// unsafe methods.

const principalKey = "mentorgo.principal"

type principal struct {
	userID string
	token  string
}

// Middleware resolves the request's token to a user and rejects the request
// with 401 when there is none or it is unknown or expired.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.requestToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		userID, err := s.ValidateToken(c.Request.Context(), token)
		switch {
		case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenRequired):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not verify token"})
			return
		}
		c.Set(principalKey, principal{userID: userID, token: token})
		c.Next()
	}
}

func principalFrom(c *gin.Context) (principal, bool) {
	val, ok := c.Get(principalKey)
	if !ok {
		return principal{}, false
	}
	p, ok := val.(principal)
	return p, ok && p.userID != ""
}

// UserIDFromContext returns the user resolved by Middleware.
func UserIDFromContext(c *gin.Context) (string, bool) {
	p, ok := principalFrom(c)
	return p.userID, ok
}

// AuthTokenFromContext returns the token the request authenticated with,
// so logout can revoke exactly that one.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	p, ok := principalFrom(c)
	return p.token, ok && p.token != ""
}

// requestToken prefers the bearer header over the cookie.
func (s *Service) requestToken(c *gin.Context) (string, bool) {
	if token, ok := s.bearerToken(c); ok {
		return token, true
	}
	if token, err := c.Cookie(s.cookieName); err == nil && token != "" {
		return token, true
	}
	return "", false
}

func (s *Service) bearerToken(c *gin.Context) (string, bool) {
	scheme, token, found := strings.Cut(c.GetHeader(s.headerName), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

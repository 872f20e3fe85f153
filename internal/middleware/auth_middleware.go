package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "studyroom/backend/internal/errors"
)

const UserIDContextKey = "userID"

// TokenParser resolves a bearer token to a user id.
type TokenParser interface {
	ParseToken(token string) (string, *apperrors.APIError)
}

func Auth(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			writeError(c, apperrors.Unauthorized("missing authorization header"))
			return
		}

		token, ok := bearerToken(authHeader)
		if !ok {
			writeError(c, apperrors.Unauthorized("invalid authorization format"))
			return
		}

		userID, apiErr := tokens.ParseToken(token)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}

		c.Set(UserIDContextKey, userID)
		c.Next()
	}
}

// SocketAuth accepts the token from the Authorization header or, since
// browsers cannot set headers on a websocket handshake, from the token
// query parameter. When required is false an anonymous handshake passes
// through without a user id, but a bad token is still rejected.
func SocketAuth(tokens TokenParser, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.Query("token"))
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			headerToken, ok := bearerToken(authHeader)
			if !ok {
				writeError(c, apperrors.Unauthorized("invalid authorization format"))
				return
			}
			token = headerToken
		}

		if token == "" {
			if required {
				writeError(c, apperrors.Unauthorized("missing token"))
				return
			}
			c.Next()
			return
		}

		userID, apiErr := tokens.ParseToken(token)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}

		c.Set(UserIDContextKey, userID)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

func UserID(c *gin.Context) string {
	value, ok := c.Get(UserIDContextKey)
	if !ok {
		return ""
	}
	userID, ok := value.(string)
	if !ok {
		return ""
	}
	return userID
}

func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	c.AbortWithStatusJSON(apiErr.Status, gin.H{
		"error": gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
			"details": apiErr.Details,
		},
	})
}

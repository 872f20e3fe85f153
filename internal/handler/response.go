package handler

import (
	"github.com/gin-gonic/gin"

	apperrors "studyroom/backend/internal/errors"
)

// WriteError aborts the request with the error envelope shared by every
// HTTP endpoint, the socket upgrade included.
func WriteError(c *gin.Context, apiErr *apperrors.APIError) {
	if apiErr == nil {
		apiErr = apperrors.Internal("internal server error")
	}

	body := gin.H{
		"code":    apiErr.Code,
		"message": apiErr.Message,
	}
	if apiErr.Details != nil {
		body["details"] = apiErr.Details
	}
	if apiErr.Code == apperrors.CodeRateLimited {
		c.Header("Retry-After", "1")
	}

	c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": body})
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		WriteError(c, apperrors.BadRequest("invalid_json", "invalid request body"))
		return false
	}
	return true
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "studyroom/backend/internal/errors"
	"studyroom/backend/internal/middleware"
	"studyroom/backend/internal/service"
)

type RoomHandler struct {
	roomService *service.RoomService
	authService *service.AuthService
}

func NewRoomHandler(roomService *service.RoomService, authService *service.AuthService) *RoomHandler {
	return &RoomHandler{roomService: roomService, authService: authService}
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, apiErr := h.roomService.GetRoom(c.Request.Context(), c.Param("roomId"))
	if apiErr != nil {
		WriteError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

func (h *RoomHandler) Me(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"code": "unauthorized", "message": "unauthorized"},
		})
		return
	}

	user, apiErr := h.authService.Profile(c.Request.Context(), userID)
	if apiErr != nil {
		WriteError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *RoomHandler) RoomHistory(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"code": "unauthorized", "message": "unauthorized"},
		})
		return
	}

	entries, apiErr := h.roomService.ListRoomHistory(c.Request.Context(), userID)
	if apiErr != nil {
		WriteError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": entries})
}

func (h *RoomHandler) FocusSessions(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"code": "unauthorized", "message": "unauthorized"},
		})
		return
	}

	limit := 0
	if rawLimit := c.Query("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil {
			WriteError(c, apperrors.BadRequest("invalid_limit", "limit must be an integer"))
			return
		}
		limit = parsed
	}

	sessions, apiErr := h.roomService.ListFocusSessions(c.Request.Context(), userID, limit)
	if apiErr != nil {
		WriteError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

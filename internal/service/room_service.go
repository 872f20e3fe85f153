package service

import (
	"context"
	"time"

	apperrors "studyroom/backend/internal/errors"
	"studyroom/backend/internal/model"
	"studyroom/backend/internal/repository"
)

const (
	roomHistoryLimit     = 10
	defaultSessionsLimit = 50
	maxSessionsLimit     = 200
)

// ParticipantCounter reports live occupancy of a room.
type ParticipantCounter interface {
	ParticipantCount(roomID string) int
}

type RoomService struct {
	rooms    *repository.RoomRepository
	presence ParticipantCounter
}

type RoomInfo struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	HostUserID       string         `json:"hostUserId,omitempty"`
	IsPrivate        bool           `json:"isPrivate"`
	Settings         model.Settings `json:"settings"`
	TotalFocusCycles int            `json:"totalFocusCycles"`
	ParticipantCount int            `json:"participantCount"`
	CreatedAt        time.Time      `json:"createdAt"`
}

func NewRoomService(rooms *repository.RoomRepository, presence ParticipantCounter) *RoomService {
	return &RoomService{rooms: rooms, presence: presence}
}

// GetRoom describes a room for a lobby page. The secret is never exposed.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*RoomInfo, *apperrors.APIError) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err == repository.ErrNotFound {
		return nil, apperrors.NotFound("room_not_found", "room not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to get room")
	}

	return &RoomInfo{
		ID:               room.ID,
		Name:             room.Name,
		HostUserID:       room.HostID(),
		IsPrivate:        room.IsPrivate(),
		Settings:         room.Settings(),
		TotalFocusCycles: room.TotalFocusCycles,
		ParticipantCount: s.presence.ParticipantCount(room.ID),
		CreatedAt:        room.CreatedAt,
	}, nil
}

func (s *RoomService) ListRoomHistory(ctx context.Context, userID string) ([]model.RoomHistoryEntry, *apperrors.APIError) {
	entries, err := s.rooms.ListHistory(ctx, userID, roomHistoryLimit)
	if err != nil {
		return nil, apperrors.Internal("failed to list room history")
	}
	return entries, nil
}

// ListFocusSessions clamps limit to [1, 200], defaulting to 50.
func (s *RoomService) ListFocusSessions(ctx context.Context, userID string, limit int) ([]model.FocusSession, *apperrors.APIError) {
	if limit <= 0 {
		limit = defaultSessionsLimit
	}
	if limit > maxSessionsLimit {
		limit = maxSessionsLimit
	}

	sessions, err := s.rooms.ListFocusSessions(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to list focus sessions")
	}
	return sessions, nil
}

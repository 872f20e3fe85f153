package studyroom

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	apperrors "studyroom/backend/internal/errors"
)

const maxChatRunes = 2000

type SignalRequest struct {
	RoomID             string          `json:"roomId"`
	TargetConnectionID string          `json:"targetConnectionId"`
	Payload            json.RawMessage `json:"payload"`
}

type SendMessageRequest struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// PeerReady tells everyone else in the room that the caller's media is up.
func (e *Engine) PeerReady(ctx context.Context, caller Caller, roomID string) *apperrors.APIError {
	s, apiErr := e.lockRoom(roomID)
	if apiErr != nil {
		return apiErr
	}
	defer s.mu.Unlock()

	p, ok := s.participants[caller.ConnectionID]
	if !ok {
		return apperrors.Forbidden("you are not in this room")
	}
	e.gateway.BroadcastExcept(s.id, caller.ConnectionID, Event{Name: EventPeerReady, Data: peerReady{
		ConnectionID: p.ConnectionID,
		DisplayName:  p.DisplayName,
	}})
	return nil
}

// Signal relays an opaque payload to one other connection in the same room.
func (e *Engine) Signal(ctx context.Context, caller Caller, req SignalRequest) *apperrors.APIError {
	s, apiErr := e.lockRoom(req.RoomID)
	if apiErr != nil {
		return apiErr
	}
	defer s.mu.Unlock()

	if _, ok := s.participants[caller.ConnectionID]; !ok {
		return apperrors.Forbidden("you are not in this room")
	}
	if _, ok := s.participants[req.TargetConnectionID]; !ok {
		return apperrors.NotFound("participant_not_found", "signal target is not in this room")
	}
	e.gateway.Send(req.TargetConnectionID, Event{Name: EventSignal, Data: signalRelay{
		SenderConnectionID: caller.ConnectionID,
		Payload:            req.Payload,
	}})
	return nil
}

func (e *Engine) SendMessage(ctx context.Context, caller Caller, req SendMessageRequest) *apperrors.APIError {
	text := strings.TrimSpace(req.Text)
	if text == "" || utf8.RuneCountInString(text) > maxChatRunes {
		return apperrors.InvalidRequest("message must be between 1 and 2000 characters")
	}

	s, apiErr := e.lockRoom(req.RoomID)
	if apiErr != nil {
		return apiErr
	}
	defer s.mu.Unlock()

	p, ok := s.participants[caller.ConnectionID]
	if !ok {
		return apperrors.Forbidden("you are not in this room")
	}
	e.gateway.Broadcast(s.id, Event{Name: EventChatMessage, Data: ChatMessage{
		ConnectionID: p.ConnectionID,
		DisplayName:  p.DisplayName,
		AvatarRef:    p.AvatarRef,
		Text:         text,
		SentAt:       e.now(),
	}})
	return nil
}

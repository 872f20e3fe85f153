package studyroom

import (
	"context"
	"crypto/subtle"
	"strings"

	apperrors "studyroom/backend/internal/errors"
	"studyroom/backend/internal/model"
	"studyroom/backend/internal/repository"
)

const maxRoomIDLength = 64

type CreateRoomRequest struct {
	RoomID      string `json:"roomId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef"`
	Secret      string `json:"secret"`
}

type JoinRoomRequest struct {
	RoomID        string `json:"roomId"`
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	AvatarRef     string `json:"avatarRef"`
	SecretAttempt string `json:"secret"`
}

// CreateRoom persists a new room with the caller as host and sole
// participant.
func (e *Engine) CreateRoom(ctx context.Context, caller Caller, req CreateRoomRequest) (*RoomJoined, *apperrors.APIError) {
	roomID := strings.TrimSpace(req.RoomID)
	displayName := strings.TrimSpace(req.DisplayName)
	if roomID == "" || len(roomID) > maxRoomIDLength {
		return nil, apperrors.InvalidRequest("roomId is required and must be at most 64 characters")
	}
	if displayName == "" {
		return nil, apperrors.InvalidRequest("displayName is required")
	}
	userID, apiErr := resolveUserID(caller, req.UserID)
	if apiErr != nil {
		return nil, apiErr
	}
	if userID == "" {
		return nil, apperrors.InvalidRequest("userId is required to host a room")
	}

	now := e.now()
	settings := e.defaultSettings()
	room := &model.Room{
		ID:                roomID,
		HostUserID:        &userID,
		Name:              displayName + "'s study room",
		FocusMinutes:      settings.Focus,
		ShortBreakMinutes: settings.ShortBreak,
		LongBreakMinutes:  settings.LongBreak,
		CreatedAt:         now,
	}
	if req.Secret != "" {
		secret := req.Secret
		room.Secret = &secret
	}

	storeCtx, cancel := e.storeCtx()
	err := e.store.CreateRoom(storeCtx, room)
	cancel()
	if err == repository.ErrAlreadyExists {
		return nil, apperrors.AlreadyExists("room_exists", "room "+roomID+" already exists")
	}
	if err != nil {
		e.logger.Error().Err(err).Str("room", roomID).Msg("create room")
		return nil, apperrors.PersistenceFailure("failed to create room")
	}

	// A session still registered under roomID is stale; the loop below
	// discards it together with any membership the caller had in it.
	if current := e.roomOf(caller.ConnectionID); current != "" && current != roomID {
		e.Disconnect(ctx, caller.ConnectionID)
	}

	s := newSession(room)
	s.mu.Lock()
	defer s.mu.Unlock()

	// s is not reachable by anyone else yet, so holding its lock while
	// taking a stale session's lock cannot deadlock.
	for {
		stale, existed := e.registry.loadOrStore(s)
		if !existed {
			break
		}
		stale.mu.Lock()
		e.discard(stale)
		stale.mu.Unlock()
	}

	s.addParticipant(&Participant{
		ConnectionID: caller.ConnectionID,
		UserID:       userID,
		DisplayName:  displayName,
		AvatarRef:    req.AvatarRef,
		JoinedAt:     now,
	})
	e.gateway.Join(roomID, caller.ConnectionID)

	snapshot := e.snapshotLocked(s, caller.ConnectionID, room, nil)
	e.gateway.Send(caller.ConnectionID, Event{Name: EventRoomJoined, Data: snapshot})

	e.logger.Info().Str("room", roomID).Str("conn", caller.ConnectionID).Str("user", userID).Msg("room created")
	return snapshot, nil
}

// JoinRoom adds the caller to an existing room, rehydrating the in-memory
// session from the durable row when the registry has none.
func (e *Engine) JoinRoom(ctx context.Context, caller Caller, req JoinRoomRequest) (*RoomJoined, *apperrors.APIError) {
	roomID := strings.TrimSpace(req.RoomID)
	displayName := strings.TrimSpace(req.DisplayName)
	if roomID == "" {
		return nil, apperrors.InvalidRequest("roomId is required")
	}
	if displayName == "" {
		return nil, apperrors.InvalidRequest("displayName is required")
	}
	userID, apiErr := resolveUserID(caller, req.UserID)
	if apiErr != nil {
		return nil, apiErr
	}

	if current := e.roomOf(caller.ConnectionID); current != "" && current != roomID {
		e.Disconnect(ctx, caller.ConnectionID)
	}

	for attempt := 0; attempt < 3; attempt++ {
		room, apiErr := e.loadRoom(roomID)
		if apiErr != nil {
			return nil, apiErr
		}

		fresh := newSession(room)
		fresh.mu.Lock()
		s, existed := e.registry.loadOrStore(fresh)
		if existed {
			fresh.mu.Unlock()
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				continue
			}
		}

		snapshot, apiErr := e.admitLocked(s, !existed, caller, userID, displayName, req.AvatarRef, req.SecretAttempt)
		s.mu.Unlock()
		return snapshot, apiErr
	}

	return nil, apperrors.NotFound("room_not_found", "room "+roomID+" does not exist")
}

// admitLocked checks the row as it stands while s is locked, so a room
// destroyed or recreated since the caller's first read is never joined on
// stale data. A session registered by this call is dropped again on
// rejection.
func (e *Engine) admitLocked(s *session, rehydrated bool, caller Caller, userID, displayName, avatarRef, secretAttempt string) (*RoomJoined, *apperrors.APIError) {
	room, apiErr := e.loadRoom(s.id)
	if apiErr == nil && room.IsPrivate() && subtle.ConstantTimeCompare([]byte(*room.Secret), []byte(secretAttempt)) != 1 {
		apiErr = apperrors.Forbidden("wrong room secret")
	}
	if apiErr != nil {
		if rehydrated {
			e.discard(s)
		}
		return nil, apiErr
	}
	return e.joinLocked(s, caller, room, userID, displayName, avatarRef), nil
}

func (e *Engine) joinLocked(s *session, caller Caller, room *model.Room, userID, displayName, avatarRef string) *RoomJoined {
	now := e.now()
	participant := &Participant{
		ConnectionID: caller.ConnectionID,
		UserID:       userID,
		DisplayName:  displayName,
		AvatarRef:    avatarRef,
		JoinedAt:     now,
	}
	if existing, ok := s.participants[caller.ConnectionID]; ok {
		participant.JoinedAt = existing.JoinedAt
	}
	s.addParticipant(participant)
	e.gateway.Join(s.id, caller.ConnectionID)

	ctx, cancel := e.storeCtx()
	defer cancel()

	if userID != "" {
		if err := e.store.TouchHistory(ctx, userID, s.id, now); err != nil {
			e.logger.Warn().Err(err).Str("room", s.id).Str("user", userID).Msg("update membership history")
		}
	}

	var task *TaskView
	if s.currentTask != nil {
		task = e.resolveTaskView(ctx, s.id, *s.currentTask)
	}

	snapshot := e.snapshotLocked(s, caller.ConnectionID, room, task)
	e.gateway.Send(caller.ConnectionID, Event{Name: EventRoomJoined, Data: snapshot})
	e.gateway.BroadcastExcept(s.id, caller.ConnectionID, Event{Name: EventParticipantJoined, Data: *participant})

	e.logger.Info().Str("room", s.id).Str("conn", caller.ConnectionID).Str("user", userID).Msg("participant joined")
	return snapshot
}

// LeaveRoom removes the caller from roomID. Leaving a room the connection
// is not part of is a no-op.
func (e *Engine) LeaveRoom(ctx context.Context, caller Caller, roomID string) *apperrors.APIError {
	s, ok := e.registry.get(roomID)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	e.removeLocked(s, caller.ConnectionID)
	return nil
}

// Disconnect handles a lost connection. The transport does not say which
// room the connection was in, so every active session is scanned.
func (e *Engine) Disconnect(ctx context.Context, connID string) {
	for _, s := range e.registry.snapshot() {
		s.mu.Lock()
		if !s.closed {
			if _, ok := s.participants[connID]; ok {
				e.removeLocked(s, connID)
				s.mu.Unlock()
				return
			}
		}
		s.mu.Unlock()
	}
}

func (e *Engine) roomOf(connID string) string {
	for _, s := range e.registry.snapshot() {
		s.mu.Lock()
		_, ok := s.participants[connID]
		closed := s.closed
		s.mu.Unlock()
		if ok && !closed {
			return s.id
		}
	}
	return ""
}

// removeLocked takes connID out of the room, destroying the room when it
// becomes empty and handing host authority on when the host left.
func (e *Engine) removeLocked(s *session, connID string) {
	p := s.removeParticipant(connID)
	if p == nil {
		return
	}
	e.gateway.Leave(s.id, connID)
	e.logger.Info().Str("room", s.id).Str("conn", connID).Str("user", p.UserID).Msg("participant left")

	if s.empty() {
		e.destroyLocked(s)
		return
	}

	e.gateway.Broadcast(s.id, Event{
		Name: EventParticipantLeft,
		Data: participantLeft{ConnectionID: connID, DisplayName: p.DisplayName},
	})

	if p.UserID == "" || s.hasUser(p.UserID) {
		return
	}

	ctx, cancel := e.storeCtx()
	room, err := e.store.GetRoom(ctx, s.id)
	cancel()
	if err != nil {
		e.logger.Error().Err(err).Str("room", s.id).Msg("read room after leave")
		return
	}
	if room.HostID() == p.UserID {
		e.succeedHostLocked(s)
	}
}

// succeedHostLocked hands the room to the longest connected participant.
func (e *Engine) succeedHostLocked(s *session) {
	next := s.earliest()
	if next == nil {
		return
	}
	if next.UserID == "" {
		e.logger.Warn().Str("room", s.id).Str("conn", next.ConnectionID).Msg("host succession abandoned: no user reference")
		return
	}

	ctx, cancel := e.storeCtx()
	defer cancel()
	if err := e.store.SetHost(ctx, s.id, next.UserID); err != nil {
		e.logger.Error().Err(err).Str("room", s.id).Str("user", next.UserID).Msg("persist host succession")
		return
	}

	e.logger.Info().Str("room", s.id).Str("user", next.UserID).Msg("host reassigned")
	e.gateway.Broadcast(s.id, Event{Name: EventHostChanged, Data: hostChanged{NewHostUserID: next.UserID, Automatic: true}})
}

// destroyLocked permanently removes an empty room from storage and memory.
// The row goes first so that a join racing this call either finds the
// closed session or no row at all.
func (e *Engine) destroyLocked(s *session) {
	ctx, cancel := e.storeCtx()
	err := e.store.DeleteRoom(ctx, s.id)
	cancel()
	e.discard(s)

	if err != nil {
		e.logger.Error().Err(err).Str("room", s.id).Msg("delete empty room")
		return
	}
	e.logger.Info().Str("room", s.id).Msg("room destroyed")
}

// discard marks s closed, stops its timer, takes any remaining
// connections out of the room's group and drops it from the registry.
func (e *Engine) discard(s *session) {
	s.closed = true
	e.stopLoopLocked(s)
	for _, connID := range s.order {
		e.gateway.Leave(s.id, connID)
	}
	e.registry.remove(s)
}

func (e *Engine) loadRoom(roomID string) (*model.Room, *apperrors.APIError) {
	ctx, cancel := e.storeCtx()
	defer cancel()
	room, err := e.store.GetRoom(ctx, roomID)
	if err == repository.ErrNotFound {
		return nil, apperrors.NotFound("room_not_found", "room "+roomID+" does not exist")
	}
	if err != nil {
		e.logger.Error().Err(err).Str("room", roomID).Msg("load room")
		return nil, apperrors.PersistenceFailure("failed to load room")
	}
	return room, nil
}

func (e *Engine) resolveTaskView(ctx context.Context, roomID string, ref model.TaskRef) *TaskView {
	view := &TaskView{TaskRef: ref, Subtasks: []model.Subtask{}}
	display, err := e.tasks.ResolveTaskDisplay(ctx, ref)
	if err != nil {
		if err != repository.ErrNotFound {
			e.logger.Warn().Err(err).Str("room", roomID).Str("task", ref.String()).Msg("resolve room task")
		}
		return view
	}
	view.Title = display.Title
	view.Subtasks = display.Subtasks
	return view
}

func (e *Engine) snapshotLocked(s *session, connID string, room *model.Room, task *TaskView) *RoomJoined {
	return &RoomJoined{
		RoomID:           s.id,
		ConnectionID:     connID,
		HostUserID:       room.HostID(),
		Participants:     s.participantsSnapshot(),
		ParticipantOrder: s.orderSnapshot(),
		IsPrivate:        room.IsPrivate(),
		TimerState:       s.timer,
		Settings:         s.settings,
		Stats:            RoomStats{TotalCycles: s.totalCycles},
		CurrentTask:      task,
	}
}

// resolveUserID reconciles the user reference supplied with an action with
// the one the transport authenticated.
func resolveUserID(caller Caller, requested string) (string, *apperrors.APIError) {
	requested = strings.TrimSpace(requested)
	if caller.UserID == "" {
		return requested, nil
	}
	if requested != "" && requested != caller.UserID {
		return "", apperrors.Forbidden("userId does not match the authenticated user")
	}
	return caller.UserID, nil
}

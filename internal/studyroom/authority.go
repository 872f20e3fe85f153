package studyroom

import (
	"context"
	"fmt"
	"strings"

	apperrors "studyroom/backend/internal/errors"
	"studyroom/backend/internal/model"
	"studyroom/backend/internal/repository"
)

type TransferHostRequest struct {
	RoomID        string `json:"roomId"`
	NewHostUserID string `json:"newHostUserId"`
}

type KickUserRequest struct {
	RoomID             string `json:"roomId"`
	TargetConnectionID string `json:"targetConnectionId"`
}

type SetTaskRequest struct {
	RoomID  string        `json:"roomId"`
	TaskRef model.TaskRef `json:"taskRef"`
}

type CheckSubtaskRequest struct {
	RoomID    string `json:"roomId"`
	SubtaskID int64  `json:"subtaskId"`
	Checked   bool   `json:"checked"`
}

type UpdateSettingsRequest struct {
	RoomID   string         `json:"roomId"`
	Settings model.Settings `json:"settings"`
}

// TransferHost hands host authority to another connected user.
func (e *Engine) TransferHost(ctx context.Context, caller Caller, req TransferHostRequest) *apperrors.APIError {
	s, apiErr := e.lockRoom(req.RoomID)
	if apiErr != nil {
		return apiErr
	}
	defer s.mu.Unlock()

	if _, apiErr := e.requireHost(s, caller.ConnectionID, "transfer host"); apiErr != nil {
		return apiErr
	}
	target := strings.TrimSpace(req.NewHostUserID)
	if target == "" || !s.hasUser(target) {
		return apperrors.NotFound("participant_not_found", "new host must be in the room")
	}

	storeCtx, cancel := e.storeCtx()
	defer cancel()
	if err := e.store.SetHost(storeCtx, s.id, target); err != nil {
		e.logger.Error().Err(err).Str("room", s.id).Str("user", target).Msg("persist host transfer")
		return apperrors.PersistenceFailure("failed to transfer host")
	}

	e.gateway.Broadcast(s.id, Event{Name: EventHostChanged, Data: hostChanged{NewHostUserID: target}})
	e.logger.Info().Str("room", s.id).Str("user", target).Msg("host transferred")
	return nil
}

// KickUser removes another connection from the room.
func (e *Engine) KickUser(ctx context.Context, caller Caller, req KickUserRequest) *apperrors.APIError {
	s, apiErr := e.lockRoom(req.RoomID)
	if apiErr != nil {
		return apiErr
	}
	defer s.mu.Unlock()

	if _, apiErr := e.requireHost(s, caller.ConnectionID, "kick participants"); apiErr != nil {
		return apiErr
	}
	if req.TargetConnectionID == caller.ConnectionID {
		return apperrors.InvalidRequest("you cannot kick yourself")
	}
	target, ok := s.participants[req.TargetConnectionID]
	if !ok {
		return apperrors.NotFound("participant_not_found", "participant is not in this room")
	}

	// Notify before the target leaves the broadcast group so it sees the kick.
	e.gateway.Broadcast(s.id, Event{Name: EventUserKicked, Data: userKicked{
		TargetConnectionID: target.ConnectionID,
		DisplayName:        target.DisplayName,
	}})
	e.logger.Info().Str("room", s.id).Str("conn", target.ConnectionID).Msg("participant kicked")
	e.removeLocked(s, target.ConnectionID)
	return nil
}

// SetTask points the room at a personal task or a workspace card.
func (e *Engine) SetTask(ctx context.Context, caller Caller, req SetTaskRequest) *apperrors.APIError {
	if !req.TaskRef.Valid() {
		return apperrors.InvalidRequest("taskRef must name a personal task or a card")
	}
	s, apiErr := e.lockRoom(req.RoomID)
	if apiErr != nil {
		return apiErr
	}
	defer s.mu.Unlock()

	if _, apiErr := e.requireHost(s, caller.ConnectionID, "set the task"); apiErr != nil {
		return apiErr
	}

	storeCtx, cancel := e.storeCtx()
	defer cancel()

	display, err := e.tasks.ResolveTaskDisplay(storeCtx, req.TaskRef)
	if err == repository.ErrNotFound {
		return apperrors.NotFound("task_not_found", "task "+req.TaskRef.String()+" does not exist")
	}
	if err != nil {
		e.logger.Error().Err(err).Str("room", s.id).Str("task", req.TaskRef.String()).Msg("resolve task")
		return apperrors.PersistenceFailure("failed to load task")
	}

	addedBy := s.participants[caller.ConnectionID].UserID
	if err := e.store.SetCurrentTask(storeCtx, s.id, req.TaskRef, addedBy); err != nil {
		e.logger.Error().Err(err).Str("room", s.id).Msg("persist current task")
		return apperrors.PersistenceFailure("failed to set task")
	}

	ref := req.TaskRef
	s.currentTask = &ref
	e.gateway.Broadcast(s.id, Event{Name: EventTaskUpdated, Data: TaskView{
		TaskRef:  ref,
		Title:    display.Title,
		Subtasks: display.Subtasks,
	}})
	return nil
}

// CheckSubtask toggles a checklist item of the room's current card. Any
// participant may do this.
func (e *Engine) CheckSubtask(ctx context.Context, caller Caller, req CheckSubtaskRequest) *apperrors.APIError {
	s, apiErr := e.lockRoom(req.RoomID)
	if apiErr != nil {
		return apiErr
	}
	defer s.mu.Unlock()

	if _, ok := s.participants[caller.ConnectionID]; !ok {
		return apperrors.Forbidden("you are not in this room")
	}
	if s.currentTask == nil || s.currentTask.Kind != model.TaskKindCard {
		return apperrors.NotFound("subtask_not_found", "the room has no card with subtasks")
	}

	storeCtx, cancel := e.storeCtx()
	defer cancel()

	display, err := e.tasks.ResolveTaskDisplay(storeCtx, *s.currentTask)
	if err != nil && err != repository.ErrNotFound {
		e.logger.Error().Err(err).Str("room", s.id).Msg("resolve card for subtask")
		return apperrors.PersistenceFailure("failed to load card")
	}
	if err == repository.ErrNotFound || !containsSubtask(display.Subtasks, req.SubtaskID) {
		return apperrors.NotFound("subtask_not_found", fmt.Sprintf("subtask %d is not on the current card", req.SubtaskID))
	}

	if err := e.tasks.SetSubtaskChecked(storeCtx, req.SubtaskID, req.Checked); err != nil {
		e.logger.Error().Err(err).Str("room", s.id).Int64("subtask", req.SubtaskID).Msg("update subtask")
		return apperrors.PersistenceFailure("failed to update subtask")
	}

	e.gateway.Broadcast(s.id, Event{Name: EventSubtaskStateChanged, Data: subtaskStateChanged{
		SubtaskID: req.SubtaskID,
		Checked:   req.Checked,
	}})
	return nil
}

// UpdateSettings persists new phase durations. A stopped timer picks up
// the new length of its current mode immediately.
func (e *Engine) UpdateSettings(ctx context.Context, caller Caller, req UpdateSettingsRequest) *apperrors.APIError {
	if apiErr := e.validateSettings(req.Settings); apiErr != nil {
		return apiErr
	}
	s, apiErr := e.lockRoom(req.RoomID)
	if apiErr != nil {
		return apiErr
	}
	defer s.mu.Unlock()

	if _, apiErr := e.requireHost(s, caller.ConnectionID, "change settings"); apiErr != nil {
		return apiErr
	}

	storeCtx, cancel := e.storeCtx()
	defer cancel()
	if err := e.store.UpdateSettings(storeCtx, s.id, req.Settings); err != nil {
		e.logger.Error().Err(err).Str("room", s.id).Msg("persist settings")
		return apperrors.PersistenceFailure("failed to save settings")
	}

	s.settings = req.Settings
	e.gateway.Broadcast(s.id, Event{Name: EventSettingsUpdated, Data: s.settings})

	if !s.timer.Running {
		s.timer.PhaseDurationSeconds = s.settings.SecondsFor(s.timer.Mode)
		s.timer.RemainingSeconds = s.timer.PhaseDurationSeconds
		e.broadcastTimer(s)
	}
	return nil
}

func (e *Engine) validateSettings(settings model.Settings) *apperrors.APIError {
	limit := e.cfg.MaxDurationMinutes
	fields := []struct {
		name  string
		value int
	}{
		{"focus", settings.Focus},
		{"shortBreak", settings.ShortBreak},
		{"longBreak", settings.LongBreak},
	}
	for _, f := range fields {
		if f.value < 1 || f.value > limit {
			return apperrors.InvalidRequest(fmt.Sprintf("%s must be between 1 and %d minutes", f.name, limit))
		}
	}
	return nil
}

// MemberReady records that a non-host participant is ready for the next
// focus phase. Outside the ready check it does nothing.
func (e *Engine) MemberReady(ctx context.Context, caller Caller, roomID string) *apperrors.APIError {
	s, apiErr := e.lockRoom(roomID)
	if apiErr != nil {
		return apiErr
	}
	defer s.mu.Unlock()

	p, ok := s.participants[caller.ConnectionID]
	if !ok {
		return apperrors.Forbidden("you are not in this room")
	}
	if !s.timer.AwaitingReady {
		return nil
	}

	storeCtx, cancel := e.storeCtx()
	room, err := e.store.GetRoom(storeCtx, s.id)
	cancel()
	if err != nil {
		e.logger.Error().Err(err).Str("room", s.id).Msg("read room for ready check")
		return apperrors.PersistenceFailure("failed to read room")
	}
	if p.UserID != "" && p.UserID == room.HostID() {
		return nil
	}

	s.ready[caller.ConnectionID] = struct{}{}
	e.gateway.Broadcast(s.id, Event{Name: EventReadyStatusUpdate, Data: readyStatus{
		ReadyCount:        len(s.ready),
		TotalParticipants: e.readyDenominator(s),
	}})
	return nil
}

// readyDenominator is the participant count without the host.
func (e *Engine) readyDenominator(s *session) int {
	return max(0, len(s.participants)-1)
}

func containsSubtask(subtasks []model.Subtask, id int64) bool {
	for _, st := range subtasks {
		if st.ID == id {
			return true
		}
	}
	return false
}

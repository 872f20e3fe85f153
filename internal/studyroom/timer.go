package studyroom

import (
	"context"
	"fmt"
	"time"

	apperrors "studyroom/backend/internal/errors"
	"studyroom/backend/internal/model"
	"studyroom/backend/internal/repository"
)

const cyclesPerLongBreak = 4

// StartTimer resumes the current phase. It is a no-op when the timer is
// already running or the phase has no time left.
func (e *Engine) StartTimer(ctx context.Context, caller Caller, roomID string) *apperrors.APIError {
	s, apiErr := e.lockRoom(roomID)
	if apiErr != nil {
		return apiErr
	}
	defer s.mu.Unlock()

	if _, apiErr := e.requireHost(s, caller.ConnectionID, "start the timer"); apiErr != nil {
		return apiErr
	}
	if s.timer.Running || s.timer.RemainingSeconds <= 0 {
		return nil
	}

	elapsed := s.timer.PhaseDurationSeconds - s.timer.RemainingSeconds
	s.phaseStartedAt = e.now().Add(-time.Duration(elapsed) * time.Second)
	s.timer.Running = true
	if s.timer.AwaitingReady {
		s.timer.AwaitingReady = false
		clear(s.ready)
	}
	e.startLoopLocked(s)
	e.broadcastTimer(s)

	e.logger.Info().Str("room", s.id).Str("mode", s.timer.Mode).Int("remaining", s.timer.RemainingSeconds).Msg("timer started")
	return nil
}

// PauseTimer stops the countdown without recording anything.
func (e *Engine) PauseTimer(ctx context.Context, caller Caller, roomID string) *apperrors.APIError {
	s, apiErr := e.lockRoom(roomID)
	if apiErr != nil {
		return apiErr
	}
	defer s.mu.Unlock()

	if _, apiErr := e.requireHost(s, caller.ConnectionID, "pause the timer"); apiErr != nil {
		return apiErr
	}
	if !s.timer.Running {
		return nil
	}

	e.stopLoopLocked(s)
	s.timer.Running = false
	e.broadcastTimer(s)
	return nil
}

// ResetTimer returns the room to the start of cycle 1. A focus phase that
// ran long enough is logged as an interrupted session first.
func (e *Engine) ResetTimer(ctx context.Context, caller Caller, roomID string) *apperrors.APIError {
	s, apiErr := e.lockRoom(roomID)
	if apiErr != nil {
		return apiErr
	}
	defer s.mu.Unlock()

	if _, apiErr := e.requireHost(s, caller.ConnectionID, "reset the timer"); apiErr != nil {
		return apiErr
	}

	if s.timer.Mode == model.ModeFocus {
		e.savePartialLocked(s)
	}

	e.stopLoopLocked(s)
	s.timer = initialTimer(s.settings)
	s.phaseStartedAt = time.Time{}
	clear(s.ready)
	e.broadcastTimer(s)
	return nil
}

func (e *Engine) savePartialLocked(s *session) {
	elapsed := s.timer.PhaseDurationSeconds - s.timer.RemainingSeconds
	if elapsed < e.cfg.MinPartialSeconds {
		return
	}
	userIDs := s.userIDs()
	if len(userIDs) == 0 {
		return
	}

	end := e.now()
	ctx, cancel := e.storeCtx()
	defer cancel()
	saved, err := e.store.RecordPartialFocus(ctx, repository.PartialFocus{
		RoomID:          s.id,
		UserIDs:         userIDs,
		StartTime:       end.Add(-time.Duration(elapsed) * time.Second),
		EndTime:         end,
		DurationMinutes: elapsed / 60,
		TaskRef:         s.currentTask,
	})
	if err != nil {
		e.logger.Error().Err(err).Str("room", s.id).Msg("record partial focus")
		return
	}
	e.logger.Info().Str("room", s.id).Int("elapsed", elapsed).Int("users", len(saved)).Msg("partial focus recorded")
}

// startLoopLocked replaces any loop the room already has with a fresh one.
func (e *Engine) startLoopLocked(s *session) {
	e.stopLoopLocked(s)

	ctx, cancel := context.WithCancel(e.ctx)
	gen := e.loopGen.Add(1)
	s.loop = &timerLoop{gen: gen, cancel: cancel}

	e.wg.Add(1)
	e.activeLoops.Add(1)
	go e.runLoop(ctx, s, gen)
}

func (e *Engine) stopLoopLocked(s *session) {
	if s.loop == nil {
		return
	}
	s.loop.cancel()
	s.loop = nil
}

func (e *Engine) runLoop(ctx context.Context, s *session, gen uint64) {
	defer e.wg.Done()
	defer e.activeLoops.Add(-1)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.tick(s, gen) {
				return
			}
		}
	}
}

// tick advances the room by one second. It reports whether the loop that
// owns gen should keep going.
func (e *Engine) tick(s *session, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.loop == nil || s.loop.gen != gen || !s.timer.Running {
		return false
	}

	s.timer.RemainingSeconds--
	if s.timer.RemainingSeconds > 0 {
		e.broadcastTimer(s)
		return true
	}
	return e.completePhaseLocked(s)
}

func (e *Engine) completePhaseLocked(s *session) bool {
	if s.timer.Mode == model.ModeFocus {
		e.rewardFocusLocked(s)

		s.timer.Cycle = s.timer.Cycle%cyclesPerLongBreak + 1
		next := model.ModeShortBreak
		if s.timer.Cycle == 1 {
			next = model.ModeLongBreak
		}
		s.timer.Mode = next
		s.timer.PhaseDurationSeconds = s.settings.SecondsFor(next)
		s.timer.RemainingSeconds = s.timer.PhaseDurationSeconds
		s.timer.Running = true
		s.phaseStartedAt = e.now()
		e.broadcastTimer(s)

		e.logger.Info().Str("room", s.id).Str("mode", next).Int("cycle", s.timer.Cycle).Msg("focus phase complete")
		return true
	}

	s.timer.Mode = model.ModeFocus
	s.timer.PhaseDurationSeconds = s.settings.SecondsFor(model.ModeFocus)
	s.timer.RemainingSeconds = s.timer.PhaseDurationSeconds
	s.timer.Running = false
	s.timer.AwaitingReady = true
	s.phaseStartedAt = time.Time{}
	clear(s.ready)
	e.stopLoopLocked(s)

	e.gateway.Broadcast(s.id, Event{Name: EventShowReadyCheck, Data: readyStatus{TotalParticipants: e.readyDenominator(s)}})
	e.broadcastTimer(s)

	e.logger.Info().Str("room", s.id).Int("cycle", s.timer.Cycle).Msg("break complete, awaiting ready")
	return false
}

// rewardFocusLocked credits everyone present for the finished focus phase.
// Failures are reported to the room and never stop the timer.
func (e *Engine) rewardFocusLocked(s *session) {
	end := e.now()
	start := s.phaseStartedAt
	if start.IsZero() {
		start = end.Add(-time.Duration(s.timer.PhaseDurationSeconds) * time.Second)
	}

	ctx, cancel := e.storeCtx()
	defer cancel()
	result, err := e.store.RecordFocusCompletion(ctx, repository.FocusCompletion{
		RoomID:          s.id,
		UserIDs:         s.userIDs(),
		StartTime:       start,
		EndTime:         end,
		DurationMinutes: s.settings.Focus,
		TaskRef:         s.currentTask,
	})
	if err != nil {
		// The in-memory counter still advances; the next successful write
		// brings it back in line with the store.
		s.totalCycles++
		e.logger.Error().Err(err).Str("room", s.id).Msg("record focus completion")
		e.broadcastRoomError(s, apperrors.PersistenceFailure("focus rewards could not be saved"))
		e.gateway.Broadcast(s.id, Event{Name: EventRoomStatsUpdated, Data: RoomStats{TotalCycles: s.totalCycles}})
		return
	}

	s.totalCycles = result.TotalCycles
	message := fmt.Sprintf("Focus session complete! %d tomato(es) awarded.", len(result.CreditedUserIDs))

	e.gateway.Broadcast(s.id, Event{Name: EventRoomStatsUpdated, Data: RoomStats{TotalCycles: s.totalCycles}})
	e.gateway.Broadcast(s.id, Event{Name: EventTomatoRewarded, Data: tomatoRewarded{
		Cycle:   s.timer.Cycle,
		UserIDs: result.CreditedUserIDs,
		Message: message,
	}})
	e.gateway.Broadcast(s.id, Event{Name: EventChatMessage, Data: ChatMessage{
		DisplayName: "Study Room",
		Text:        message,
		System:      true,
		SentAt:      end,
	}})
}

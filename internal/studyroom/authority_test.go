package studyroom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "studyroom/backend/internal/errors"
	"studyroom/backend/internal/model"
)

func TestTransferHost(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.create(t, "r1", "c1", "u1")
	env.join(t, "r1", "c2", "u2")

	apiErr := env.engine.TransferHost(ctx, Caller{ConnectionID: "c2"}, TransferHostRequest{RoomID: "r1", NewHostUserID: "u2"})
	require.NotNil(t, apiErr)
	assert.Equal(t, apperrors.CodeForbidden, apiErr.Code)

	apiErr = env.engine.TransferHost(ctx, Caller{ConnectionID: "c1"}, TransferHostRequest{RoomID: "r1", NewHostUserID: "u9"})
	require.NotNil(t, apiErr)
	assert.Equal(t, "participant_not_found", apiErr.Code)

	require.Nil(t, env.engine.TransferHost(ctx, Caller{ConnectionID: "c1"}, TransferHostRequest{RoomID: "r1", NewHostUserID: "u2"}))
	assert.Equal(t, "u2", env.hostOf(t, "r1"))
	assert.Equal(t, hostChanged{NewHostUserID: "u2"}, env.gateway.last(t, "c1", EventHostChanged).Data)

	apiErr = env.engine.StartTimer(ctx, Caller{ConnectionID: "c1"}, "r1")
	require.NotNil(t, apiErr)
	assert.Equal(t, apperrors.CodeForbidden, apiErr.Code)
	require.Nil(t, env.engine.StartTimer(ctx, Caller{ConnectionID: "c2"}, "r1"))
}

func TestHostCheckReadsDurableHost(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.create(t, "r1", "c1", "u1")
	env.join(t, "r1", "c2", "u2")

	require.NoError(t, env.rooms.SetHost(ctx, "r1", "u2"))

	apiErr := env.engine.StartTimer(ctx, Caller{ConnectionID: "c1"}, "r1")
	require.NotNil(t, apiErr)
	assert.Equal(t, apperrors.CodeForbidden, apiErr.Code)
	require.Nil(t, env.engine.StartTimer(ctx, Caller{ConnectionID: "c2"}, "r1"))
}

func TestKickUser(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	host := Caller{ConnectionID: "c1"}
	env.create(t, "r1", "c1", "u1")
	env.join(t, "r1", "c2", "u2")
	env.join(t, "r1", "c3", "u3")

	apiErr := env.engine.KickUser(ctx, Caller{ConnectionID: "c2"}, KickUserRequest{RoomID: "r1", TargetConnectionID: "c3"})
	require.NotNil(t, apiErr)
	assert.Equal(t, apperrors.CodeForbidden, apiErr.Code)

	apiErr = env.engine.KickUser(ctx, host, KickUserRequest{RoomID: "r1", TargetConnectionID: "c1"})
	require.NotNil(t, apiErr)
	assert.Equal(t, apperrors.CodeInvalidRequest, apiErr.Code)

	require.Nil(t, env.engine.KickUser(ctx, host, KickUserRequest{RoomID: "r1", TargetConnectionID: "c2"}))
	kicked := env.gateway.last(t, "c2", EventUserKicked).Data.(userKicked)
	assert.Equal(t, "c2", kicked.TargetConnectionID)
	env.gateway.last(t, "c3", EventUserKicked)
	assert.False(t, env.gateway.inGroup("r1", "c2"))
	assert.Equal(t, 2, env.engine.Registry().ParticipantCount("r1"))

	apiErr = env.engine.KickUser(ctx, host, KickUserRequest{RoomID: "r1", TargetConnectionID: "c2"})
	require.NotNil(t, apiErr)
	assert.Equal(t, "participant_not_found", apiErr.Code)
}

func TestUpdateSettings(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	host := Caller{ConnectionID: "c1"}
	env.create(t, "r1", "c1", "u1")
	env.join(t, "r1", "c2", "u2")

	for _, bad := range []model.Settings{
		{Focus: 0, ShortBreak: 5, LongBreak: 15},
		{Focus: 25, ShortBreak: -1, LongBreak: 15},
		{Focus: 25, ShortBreak: 5, LongBreak: 181},
	} {
		apiErr := env.engine.UpdateSettings(ctx, host, UpdateSettingsRequest{RoomID: "r1", Settings: bad})
		require.NotNil(t, apiErr)
		assert.Equal(t, apperrors.CodeInvalidRequest, apiErr.Code)
	}

	apiErr := env.engine.UpdateSettings(ctx, Caller{ConnectionID: "c2"}, UpdateSettingsRequest{RoomID: "r1", Settings: shortSettings()})
	require.NotNil(t, apiErr)
	assert.Equal(t, apperrors.CodeForbidden, apiErr.Code)

	updated := model.Settings{Focus: 10, ShortBreak: 3, LongBreak: 20}
	require.Nil(t, env.engine.UpdateSettings(ctx, host, UpdateSettingsRequest{RoomID: "r1", Settings: updated}))
	assert.Equal(t, updated, env.gateway.last(t, "c2", EventSettingsUpdated).Data)
	assert.Equal(t, 600, env.timer(t, "r1").RemainingSeconds)
	assert.Equal(t, 600, env.gateway.last(t, "c2", EventTimerUpdate).Data.(TimerState).PhaseDurationSeconds)

	room, err := env.rooms.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, updated, room.Settings())

	t.Run("running timer keeps its phase", func(t *testing.T) {
		require.Nil(t, env.engine.StartTimer(ctx, host, "r1"))
		env.forceTick(t, "r1")
		require.Nil(t, env.engine.UpdateSettings(ctx, host, UpdateSettingsRequest{RoomID: "r1", Settings: model.Settings{Focus: 30, ShortBreak: 3, LongBreak: 20}}))
		ts := env.timer(t, "r1")
		assert.Equal(t, 600, ts.PhaseDurationSeconds)
		assert.Equal(t, 599, ts.RemainingSeconds)
	})
}

func TestSetTaskAndCheckSubtask(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	host := Caller{ConnectionID: "c1"}
	member := Caller{ConnectionID: "c2"}
	env.insertUsers(t, "u1")

	_, err := env.db.Exec(`INSERT INTO board_cards (id, title, created_at) VALUES (5, 'Lab report', '2024-01-01T00:00:00Z')`)
	require.NoError(t, err)
	_, err = env.db.Exec(`INSERT INTO card_checklists (id, card_id, title, position) VALUES (1, 5, 'Steps', 0)`)
	require.NoError(t, err)
	_, err = env.db.Exec(`INSERT INTO checklist_items (id, checklist_id, title, position) VALUES (50, 1, 'Outline', 0), (51, 1, 'Write', 1)`)
	require.NoError(t, err)

	env.create(t, "r1", "c1", "u1")
	env.join(t, "r1", "c2", "u2")

	apiErr := env.engine.CheckSubtask(ctx, member, CheckSubtaskRequest{RoomID: "r1", SubtaskID: 50, Checked: true})
	require.NotNil(t, apiErr)
	assert.Equal(t, "subtask_not_found", apiErr.Code)

	apiErr = env.engine.SetTask(ctx, host, SetTaskRequest{RoomID: "r1", TaskRef: model.WorkspaceCard(99)})
	require.NotNil(t, apiErr)
	assert.Equal(t, "task_not_found", apiErr.Code)

	apiErr = env.engine.SetTask(ctx, host, SetTaskRequest{RoomID: "r1", TaskRef: model.TaskRef{Kind: "other", ID: 5}})
	require.NotNil(t, apiErr)
	assert.Equal(t, apperrors.CodeInvalidRequest, apiErr.Code)

	apiErr = env.engine.SetTask(ctx, member, SetTaskRequest{RoomID: "r1", TaskRef: model.WorkspaceCard(5)})
	require.NotNil(t, apiErr)
	assert.Equal(t, apperrors.CodeForbidden, apiErr.Code)

	require.Nil(t, env.engine.SetTask(ctx, host, SetTaskRequest{RoomID: "r1", TaskRef: model.WorkspaceCard(5)}))
	view := env.gateway.last(t, "c2", EventTaskUpdated).Data.(TaskView)
	assert.Equal(t, "Lab report", view.Title)
	require.Len(t, view.Subtasks, 2)
	assert.Equal(t, "Outline", view.Subtasks[0].Title)

	require.Nil(t, env.engine.CheckSubtask(ctx, member, CheckSubtaskRequest{RoomID: "r1", SubtaskID: 51, Checked: true}))
	assert.Equal(t, subtaskStateChanged{SubtaskID: 51, Checked: true}, env.gateway.last(t, "c1", EventSubtaskStateChanged).Data)

	var checked bool
	require.NoError(t, env.db.QueryRow(`SELECT is_checked FROM checklist_items WHERE id = 51`).Scan(&checked))
	assert.True(t, checked)

	apiErr = env.engine.CheckSubtask(ctx, member, CheckSubtaskRequest{RoomID: "r1", SubtaskID: 999, Checked: true})
	require.NotNil(t, apiErr)
	assert.Equal(t, "subtask_not_found", apiErr.Code)

	apiErr = env.engine.CheckSubtask(ctx, Caller{ConnectionID: "stranger"}, CheckSubtaskRequest{RoomID: "r1", SubtaskID: 50})
	require.NotNil(t, apiErr)
	assert.Equal(t, apperrors.CodeForbidden, apiErr.Code)
}

func TestReadinessGate(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	host := Caller{ConnectionID: "c1"}
	env.create(t, "r1", "c1", "u1")
	env.join(t, "r1", "c2", "u2")
	env.join(t, "r1", "c3", "")

	require.Nil(t, env.engine.MemberReady(ctx, Caller{ConnectionID: "c2"}, "r1"))
	assert.Empty(t, env.gateway.named("c1", EventReadyStatusUpdate), "ready outside the check is ignored")

	require.Nil(t, env.engine.UpdateSettings(ctx, host, UpdateSettingsRequest{RoomID: "r1", Settings: shortSettings()}))
	require.Nil(t, env.engine.StartTimer(ctx, host, "r1"))
	env.finishPhase(t, "r1")
	env.finishPhase(t, "r1")

	check := env.gateway.last(t, "c2", EventShowReadyCheck).Data.(readyStatus)
	assert.Equal(t, readyStatus{ReadyCount: 0, TotalParticipants: 2}, check)

	require.Nil(t, env.engine.MemberReady(ctx, host, "r1"))
	assert.Empty(t, env.gateway.named("c1", EventReadyStatusUpdate), "host is not counted")

	require.Nil(t, env.engine.MemberReady(ctx, Caller{ConnectionID: "c2"}, "r1"))
	require.Nil(t, env.engine.MemberReady(ctx, Caller{ConnectionID: "c2"}, "r1"))
	assert.Equal(t, readyStatus{ReadyCount: 1, TotalParticipants: 2}, env.gateway.last(t, "c1", EventReadyStatusUpdate).Data)

	require.Nil(t, env.engine.MemberReady(ctx, Caller{ConnectionID: "c3"}, "r1"))
	assert.Equal(t, readyStatus{ReadyCount: 2, TotalParticipants: 2}, env.gateway.last(t, "c1", EventReadyStatusUpdate).Data)
	assert.False(t, env.timer(t, "r1").Running, "full readiness does not start the timer")

	require.Nil(t, env.engine.StartTimer(ctx, host, "r1"))
	ts := env.timer(t, "r1")
	assert.True(t, ts.Running)
	assert.False(t, ts.AwaitingReady)
}

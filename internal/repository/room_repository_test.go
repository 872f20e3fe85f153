package repository_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyroom/backend/internal/db"
	"studyroom/backend/internal/model"
	"studyroom/backend/internal/repository"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = database.Close()
	})

	_, currentFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(currentFile), "..", "..", "migrations")
	require.NoError(t, db.RunMigrations(database, migrationsDir))
	return database
}

func insertUser(t *testing.T, database *sql.DB, id string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := database.Exec(
		`INSERT INTO users (id, email, display_name, password_hash, created_at, updated_at) VALUES (?, ?, ?, 'x', ?, ?)`,
		id, id+"@example.com", id, now, now,
	)
	require.NoError(t, err)
}

func newRoom(id, host string) *model.Room {
	return &model.Room{
		ID:                id,
		HostUserID:        &host,
		Name:              "room " + id,
		FocusMinutes:      25,
		ShortBreakMinutes: 5,
		LongBreakMinutes:  15,
		CreatedAt:         time.Now().UTC(),
	}
}

func TestCreateRoomRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRoomRepository(openTestDB(t))

	require.NoError(t, repo.CreateRoom(ctx, newRoom("r1", "u1")))
	err := repo.CreateRoom(ctx, newRoom("r1", "u2"))
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)

	room, err := repo.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "u1", room.HostID())
	assert.False(t, room.IsPrivate())
}

func TestDeleteRoomCascadesHistory(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	repo := repository.NewRoomRepository(database)

	require.NoError(t, repo.CreateRoom(ctx, newRoom("r1", "u1")))
	history, err := repo.ListHistory(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "room r1", history[0].RoomName)

	require.NoError(t, repo.DeleteRoom(ctx, "r1"))
	require.NoError(t, repo.DeleteRoom(ctx, "r1"))

	_, err = repo.GetRoom(ctx, "r1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	var count int
	require.NoError(t, database.QueryRow(`SELECT COUNT(1) FROM room_history`).Scan(&count))
	assert.Zero(t, count)
}

func TestTouchHistoryUpserts(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	repo := repository.NewRoomRepository(database)
	require.NoError(t, repo.CreateRoom(ctx, newRoom("r1", "u1")))

	later := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.TouchHistory(ctx, "u1", "r1", later))

	history, err := repo.ListHistory(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.WithinDuration(t, later, history[0].LastJoinedAt, time.Millisecond)
}

func TestSetHostAndSettingsRequireRoom(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRoomRepository(openTestDB(t))

	assert.ErrorIs(t, repo.SetHost(ctx, "missing", "u1"), repository.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateSettings(ctx, "missing", model.Settings{Focus: 1, ShortBreak: 1, LongBreak: 1}), repository.ErrNotFound)

	require.NoError(t, repo.CreateRoom(ctx, newRoom("r1", "u1")))
	require.NoError(t, repo.SetHost(ctx, "r1", "u2"))
	require.NoError(t, repo.UpdateSettings(ctx, "r1", model.Settings{Focus: 50, ShortBreak: 10, LongBreak: 30}))

	room, err := repo.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "u2", room.HostID())
	assert.Equal(t, model.Settings{Focus: 50, ShortBreak: 10, LongBreak: 30}, room.Settings())
}

func TestRecordFocusCompletionCreditsKnownUsers(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	repo := repository.NewRoomRepository(database)
	insertUser(t, database, "u1")
	insertUser(t, database, "u2")
	require.NoError(t, repo.CreateRoom(ctx, newRoom("r1", "u1")))

	card := model.WorkspaceCard(7)
	end := time.Now().UTC()
	result, err := repo.RecordFocusCompletion(ctx, repository.FocusCompletion{
		RoomID:          "r1",
		UserIDs:         []string{"u1", "ghost", "u2", "u1"},
		StartTime:       end.Add(-25 * time.Minute),
		EndTime:         end,
		DurationMinutes: 25,
		TaskRef:         &card,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, result.CreditedUserIDs)
	assert.Equal(t, 1, result.TotalCycles)

	users := repository.NewUserRepository(database)
	u1, err := users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, u1.Tomatoes)

	sessions, err := repo.ListFocusSessions(ctx, "u2", 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, model.SessionStatusCompleted, sessions[0].Status)
	assert.Equal(t, 25, sessions[0].DurationMinutes)
	require.NotNil(t, sessions[0].TaskRef)
	assert.Equal(t, card, *sessions[0].TaskRef)
}

func TestRecordPartialFocus(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	repo := repository.NewRoomRepository(database)
	insertUser(t, database, "u1")

	end := time.Now().UTC()
	recorded, err := repo.RecordPartialFocus(ctx, repository.PartialFocus{
		RoomID:          "r1",
		UserIDs:         []string{"u1", "ghost"},
		StartTime:       end.Add(-90 * time.Second),
		EndTime:         end,
		DurationMinutes: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, recorded)

	sessions, err := repo.ListFocusSessions(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, model.SessionStatusInterrupted, sessions[0].Status)
	assert.Nil(t, sessions[0].TaskRef)
}

func TestSetCurrentTask(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	repo := repository.NewRoomRepository(database)
	require.NoError(t, repo.CreateRoom(ctx, newRoom("r1", "u1")))

	require.NoError(t, repo.SetCurrentTask(ctx, "r1", model.PersonalTask(3), "u1"))
	assert.ErrorIs(t, repo.SetCurrentTask(ctx, "missing", model.PersonalTask(3), "u1"), repository.ErrNotFound)

	room, err := repo.GetRoom(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, room.CurrentTask)
	assert.Equal(t, model.PersonalTask(3), *room.CurrentTask)

	var pointers int
	require.NoError(t, database.QueryRow(`SELECT COUNT(1) FROM study_room_tasks WHERE room_id = 'r1'`).Scan(&pointers))
	assert.Equal(t, 1, pointers)
}

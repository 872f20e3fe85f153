package studyroom

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"studyroom/backend/internal/config"
	"studyroom/backend/internal/db"
	"studyroom/backend/internal/model"
	"studyroom/backend/internal/repository"
)

// fakeGateway records what each connection would have received.
type fakeGateway struct {
	mu     sync.Mutex
	groups map[string]map[string]bool
	inbox  map[string][]Event
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		groups: make(map[string]map[string]bool),
		inbox:  make(map[string][]Event),
	}
}

func (g *fakeGateway) Send(connID string, ev Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inbox[connID] = append(g.inbox[connID], ev)
}

func (g *fakeGateway) Broadcast(roomID string, ev Event) {
	g.BroadcastExcept(roomID, "", ev)
}

func (g *fakeGateway) BroadcastExcept(roomID, exceptConnID string, ev Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for connID := range g.groups[roomID] {
		if connID != exceptConnID {
			g.inbox[connID] = append(g.inbox[connID], ev)
		}
	}
}

func (g *fakeGateway) Join(roomID, connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.groups[roomID] == nil {
		g.groups[roomID] = make(map[string]bool)
	}
	g.groups[roomID][connID] = true
}

func (g *fakeGateway) Leave(roomID, connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.groups[roomID], connID)
}

func (g *fakeGateway) inGroup(roomID, connID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.groups[roomID][connID]
}

func (g *fakeGateway) named(connID, name string) []Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Event
	for _, ev := range g.inbox[connID] {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (g *fakeGateway) last(t *testing.T, connID, name string) Event {
	t.Helper()
	events := g.named(connID, name)
	require.NotEmpty(t, events, "connection %s received no %s event", connID, name)
	return events[len(events)-1]
}

func (g *fakeGateway) clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inbox = make(map[string][]Event)
}

type testEnv struct {
	engine  *Engine
	gateway *fakeGateway
	db      *sql.DB
	rooms   *repository.RoomRepository
}

func testRoomConfig() config.RoomConfig {
	return config.RoomConfig{
		FocusMinutes:       25,
		ShortBreakMinutes:  5,
		LongBreakMinutes:   15,
		MaxDurationMinutes: 180,
		// Loops never fire on their own; tests drive them with forceTick.
		TickInterval:      time.Hour,
		MinPartialSeconds: 60,
	}
}

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

func newEnvWithDB(t *testing.T, database *sql.DB) *testEnv {
	t.Helper()
	gw := newFakeGateway()
	rooms := repository.NewRoomRepository(database)
	engine := NewEngine(rooms, repository.NewTaskRepository(database), gw, testRoomConfig())
	t.Cleanup(engine.Close)
	return &testEnv{engine: engine, gateway: gw, db: database, rooms: rooms}
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	return newEnvWithDB(t, openTestDB(t))
}

func (env *testEnv) insertUsers(t *testing.T, ids ...string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, id := range ids {
		_, err := env.db.Exec(
			`INSERT INTO users (id, email, display_name, password_hash, created_at, updated_at) VALUES (?, ?, ?, 'x', ?, ?)`,
			id, id+"@example.com", id, now, now,
		)
		require.NoError(t, err)
	}
}

func (env *testEnv) create(t *testing.T, roomID, connID, userID string) {
	t.Helper()
	_, apiErr := env.engine.CreateRoom(context.Background(), Caller{ConnectionID: connID}, CreateRoomRequest{
		RoomID:      roomID,
		UserID:      userID,
		DisplayName: userID,
	})
	require.Nil(t, apiErr)
}

func (env *testEnv) join(t *testing.T, roomID, connID, userID string) *RoomJoined {
	t.Helper()
	snapshot, apiErr := env.engine.JoinRoom(context.Background(), Caller{ConnectionID: connID}, JoinRoomRequest{
		RoomID:      roomID,
		UserID:      userID,
		DisplayName: "name-" + connID,
	})
	require.Nil(t, apiErr)
	return snapshot
}

func (env *testEnv) hostOf(t *testing.T, roomID string) string {
	t.Helper()
	room, err := env.rooms.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	return room.HostID()
}

func (env *testEnv) countSessions(t *testing.T, status string) int {
	t.Helper()
	var n int
	require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM focus_sessions WHERE status = ?`, status).Scan(&n))
	return n
}

func (env *testEnv) session(t *testing.T, roomID string) *session {
	t.Helper()
	s, ok := env.engine.registry.get(roomID)
	require.True(t, ok, "room %s is not active", roomID)
	return s
}

func (env *testEnv) timer(t *testing.T, roomID string) TimerState {
	t.Helper()
	s := env.session(t, roomID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer
}

// setRemaining moves the running phase to n seconds left.
func (env *testEnv) setRemaining(t *testing.T, roomID string, n int) {
	t.Helper()
	s := env.session(t, roomID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer.RemainingSeconds = n
}

// forceTick runs one tick of the room's current loop.
func (env *testEnv) forceTick(t *testing.T, roomID string) bool {
	t.Helper()
	s := env.session(t, roomID)
	s.mu.Lock()
	require.NotNil(t, s.loop, "room %s has no timer loop", roomID)
	gen := s.loop.gen
	s.mu.Unlock()
	return env.engine.tick(s, gen)
}

// finishPhase ticks the running phase down to zero.
func (env *testEnv) finishPhase(t *testing.T, roomID string) bool {
	t.Helper()
	env.setRemaining(t, roomID, 1)
	return env.forceTick(t, roomID)
}

func shortSettings() model.Settings {
	return model.Settings{Focus: 1, ShortBreak: 1, LongBreak: 2}
}

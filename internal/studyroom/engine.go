package studyroom

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"studyroom/backend/internal/config"
	apperrors "studyroom/backend/internal/errors"
	"studyroom/backend/internal/model"
	"studyroom/backend/internal/repository"
)

const storeTimeout = 5 * time.Second

// Store is the durable side of a room: settings, host identity, task
// pointers, membership history and focus-session bookkeeping.
type Store interface {
	CreateRoom(ctx context.Context, room *model.Room) error
	GetRoom(ctx context.Context, roomID string) (*model.Room, error)
	DeleteRoom(ctx context.Context, roomID string) error
	TouchHistory(ctx context.Context, userID, roomID string, at time.Time) error
	SetHost(ctx context.Context, roomID, userID string) error
	SetCurrentTask(ctx context.Context, roomID string, ref model.TaskRef, addedBy string) error
	UpdateSettings(ctx context.Context, roomID string, settings model.Settings) error
	RecordFocusCompletion(ctx context.Context, in repository.FocusCompletion) (*repository.FocusCompletionResult, error)
	RecordPartialFocus(ctx context.Context, in repository.PartialFocus) ([]string, error)
}

// TaskResolver exposes the task and workspace-card collaborator.
type TaskResolver interface {
	ResolveTaskDisplay(ctx context.Context, ref model.TaskRef) (*model.TaskDisplay, error)
	SetSubtaskChecked(ctx context.Context, subtaskID int64, checked bool) error
}

// Gateway is the real-time transport. Implementations must not block and
// must not call back into the Engine.
type Gateway interface {
	Send(connID string, ev Event)
	Broadcast(roomID string, ev Event)
	BroadcastExcept(roomID, exceptConnID string, ev Event)
	Join(roomID, connID string)
	Leave(roomID, connID string)
}

// Caller identifies the connection an action arrived on. UserID is set when
// the transport authenticated the connection.
type Caller struct {
	ConnectionID string
	UserID       string
}

type Engine struct {
	store    Store
	tasks    TaskResolver
	gateway  Gateway
	registry *Registry
	cfg      config.RoomConfig
	now      func() time.Time
	logger   zerolog.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	loopGen     atomic.Uint64
	activeLoops atomic.Int64
}

func NewEngine(store Store, tasks TaskResolver, gateway Gateway, cfg config.RoomConfig) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:    store,
		tasks:    tasks,
		gateway:  gateway,
		registry: NewRegistry(),
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   log.With().Str("module", "studyroom").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

// Close stops every timer loop and waits for them to exit. In-memory rooms
// are dropped with the process; durable rows are left for rehydration.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) defaultSettings() model.Settings {
	return model.Settings{
		Focus:      e.cfg.FocusMinutes,
		ShortBreak: e.cfg.ShortBreakMinutes,
		LongBreak:  e.cfg.LongBreakMinutes,
	}
}

// storeCtx bounds a store call and detaches it from the caller's
// cancellation so a departing client cannot abort cleanup halfway.
func (e *Engine) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

// lockRoom returns the active session for roomID with its lock held.
func (e *Engine) lockRoom(roomID string) (*session, *apperrors.APIError) {
	s, ok := e.registry.get(roomID)
	if !ok {
		return nil, apperrors.NotFound("room_not_found", "room is not active")
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, apperrors.NotFound("room_not_found", "room is not active")
	}
	return s, nil
}

// requireHost re-reads the durable host id and checks it against the
// calling connection's user reference.
func (e *Engine) requireHost(s *session, connID, what string) (*model.Room, *apperrors.APIError) {
	p, ok := s.participants[connID]
	if !ok {
		return nil, apperrors.Forbidden("you are not in this room")
	}

	ctx, cancel := e.storeCtx()
	defer cancel()
	room, err := e.store.GetRoom(ctx, s.id)
	if err == repository.ErrNotFound {
		return nil, apperrors.NotFound("room_not_found", "room does not exist")
	}
	if err != nil {
		e.logger.Error().Err(err).Str("room", s.id).Msg("read room for host check")
		return nil, apperrors.PersistenceFailure("failed to read room")
	}

	if p.UserID == "" || p.UserID != room.HostID() {
		return nil, apperrors.Forbidden("only the host can " + what)
	}
	return room, nil
}

func (e *Engine) broadcastTimer(s *session) {
	e.gateway.Broadcast(s.id, Event{Name: EventTimerUpdate, Data: s.timer})
}

func (e *Engine) broadcastRoomError(s *session, apiErr *apperrors.APIError) {
	e.gateway.Broadcast(s.id, Event{Name: EventRoomError, Data: roomError{Code: apiErr.Code, Message: apiErr.Message}})
}

func (e *Engine) reject(caller Caller, action string, apiErr *apperrors.APIError) {
	e.gateway.Send(caller.ConnectionID, Event{
		Name: EventError,
		Data: Rejection{Action: action, Code: apiErr.Code, Message: apiErr.Message},
	})
}

// ActiveLoops reports how many timer loops are currently running.
func (e *Engine) ActiveLoops() int {
	return int(e.activeLoops.Load())
}

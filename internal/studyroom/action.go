package studyroom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	apperrors "studyroom/backend/internal/errors"
)

// ActionKind is the closed set of client actions the engine understands.
type ActionKind int

const (
	ActionCreateRoom ActionKind = iota + 1
	ActionJoinRoom
	ActionLeaveRoom
	ActionTransferHost
	ActionKickUser
	ActionSetTask
	ActionCheckSubtask
	ActionUpdateSettings
	ActionStartTimer
	ActionPauseTimer
	ActionResetTimer
	ActionMemberReady
	ActionPeerReady
	ActionSignal
	ActionSendMessage
)

var actionNames = map[ActionKind]string{
	ActionCreateRoom:     "createRoom",
	ActionJoinRoom:       "joinRoom",
	ActionLeaveRoom:      "leaveRoom",
	ActionTransferHost:   "transferHost",
	ActionKickUser:       "kickUser",
	ActionSetTask:        "setTask",
	ActionCheckSubtask:   "checkSubtask",
	ActionUpdateSettings: "updateSettings",
	ActionStartTimer:     "startTimer",
	ActionPauseTimer:     "pauseTimer",
	ActionResetTimer:     "resetTimer",
	ActionMemberReady:    "memberReady",
	ActionPeerReady:      "ready",
	ActionSignal:         "signal",
	ActionSendMessage:    "sendMessage",
}

var actionsByName = func() map[string]ActionKind {
	out := make(map[string]ActionKind, len(actionNames))
	for kind, name := range actionNames {
		out[name] = kind
	}
	return out
}()

func (k ActionKind) String() string {
	if name, ok := actionNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ActionKind(%d)", int(k))
}

func ParseAction(name string) (ActionKind, bool) {
	kind, ok := actionsByName[name]
	return kind, ok
}

type roomRequest struct {
	RoomID string `json:"roomId"`
}

type handlerFunc func(e *Engine, ctx context.Context, caller Caller, data json.RawMessage) *apperrors.APIError

func decodeInto[T any](fn func(e *Engine, ctx context.Context, caller Caller, req T) *apperrors.APIError) handlerFunc {
	return func(e *Engine, ctx context.Context, caller Caller, data json.RawMessage) *apperrors.APIError {
		var req T
		if len(bytes.TrimSpace(data)) > 0 {
			if err := json.Unmarshal(data, &req); err != nil {
				return apperrors.InvalidRequest("invalid payload: " + err.Error())
			}
		}
		return fn(e, ctx, caller, req)
	}
}

var handlers = map[ActionKind]handlerFunc{
	ActionCreateRoom: decodeInto(func(e *Engine, ctx context.Context, c Caller, req CreateRoomRequest) *apperrors.APIError {
		_, apiErr := e.CreateRoom(ctx, c, req)
		return apiErr
	}),
	ActionJoinRoom: decodeInto(func(e *Engine, ctx context.Context, c Caller, req JoinRoomRequest) *apperrors.APIError {
		_, apiErr := e.JoinRoom(ctx, c, req)
		return apiErr
	}),
	ActionLeaveRoom: decodeInto(func(e *Engine, ctx context.Context, c Caller, req roomRequest) *apperrors.APIError {
		return e.LeaveRoom(ctx, c, req.RoomID)
	}),
	ActionTransferHost:   decodeInto((*Engine).TransferHost),
	ActionKickUser:       decodeInto((*Engine).KickUser),
	ActionSetTask:        decodeInto((*Engine).SetTask),
	ActionCheckSubtask:   decodeInto((*Engine).CheckSubtask),
	ActionUpdateSettings: decodeInto((*Engine).UpdateSettings),
	ActionStartTimer: decodeInto(func(e *Engine, ctx context.Context, c Caller, req roomRequest) *apperrors.APIError {
		return e.StartTimer(ctx, c, req.RoomID)
	}),
	ActionPauseTimer: decodeInto(func(e *Engine, ctx context.Context, c Caller, req roomRequest) *apperrors.APIError {
		return e.PauseTimer(ctx, c, req.RoomID)
	}),
	ActionResetTimer: decodeInto(func(e *Engine, ctx context.Context, c Caller, req roomRequest) *apperrors.APIError {
		return e.ResetTimer(ctx, c, req.RoomID)
	}),
	ActionMemberReady: decodeInto(func(e *Engine, ctx context.Context, c Caller, req roomRequest) *apperrors.APIError {
		return e.MemberReady(ctx, c, req.RoomID)
	}),
	ActionPeerReady: decodeInto(func(e *Engine, ctx context.Context, c Caller, req roomRequest) *apperrors.APIError {
		return e.PeerReady(ctx, c, req.RoomID)
	}),
	ActionSignal:      decodeInto((*Engine).Signal),
	ActionSendMessage: decodeInto((*Engine).SendMessage),
}

// Dispatch routes one named client action. Failures are sent back to the
// calling connection only and also returned for the transport's logs.
func (e *Engine) Dispatch(ctx context.Context, caller Caller, action string, data json.RawMessage) (apiErr *apperrors.APIError) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("action", action).
				Str("conn", caller.ConnectionID).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("action handler panicked")
			apiErr = apperrors.Internal("unexpected error")
			e.reject(caller, action, apiErr)
		}
	}()

	kind, ok := ParseAction(action)
	if !ok {
		apiErr = apperrors.InvalidRequest("unknown action " + action)
		e.reject(caller, action, apiErr)
		return apiErr
	}

	if apiErr = handlers[kind](e, ctx, caller, data); apiErr != nil {
		e.reject(caller, action, apiErr)
	}
	return apiErr
}

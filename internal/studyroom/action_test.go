package studyroom

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "studyroom/backend/internal/errors"
)

func TestParseAction(t *testing.T) {
	for kind, name := range actionNames {
		parsed, ok := ParseAction(name)
		require.True(t, ok, name)
		assert.Equal(t, kind, parsed)
		assert.Equal(t, name, kind.String())
		assert.Contains(t, handlers, kind, "no handler for %s", name)
	}

	_, ok := ParseAction("dropTables")
	assert.False(t, ok)
	assert.Equal(t, "ActionKind(99)", ActionKind(99).String())
}

func TestDispatchRejectsUnknownAction(t *testing.T) {
	env := newEnv(t)
	caller := Caller{ConnectionID: "c1"}

	apiErr := env.engine.Dispatch(context.Background(), caller, "dropTables", nil)
	require.NotNil(t, apiErr)
	assert.Equal(t, apperrors.CodeInvalidRequest, apiErr.Code)

	rejection := env.gateway.last(t, "c1", EventError).Data.(Rejection)
	assert.Equal(t, "dropTables", rejection.Action)
	assert.Equal(t, apperrors.CodeInvalidRequest, rejection.Code)
}

func TestDispatchRejectsMalformedPayload(t *testing.T) {
	env := newEnv(t)
	apiErr := env.engine.Dispatch(context.Background(), Caller{ConnectionID: "c1"}, "createRoom", json.RawMessage(`{"roomId": 12`))
	require.NotNil(t, apiErr)
	assert.Equal(t, apperrors.CodeInvalidRequest, apiErr.Code)
}

func TestDispatchRoutesActions(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	host := Caller{ConnectionID: "c1"}

	require.Nil(t, env.engine.Dispatch(ctx, host, "createRoom", json.RawMessage(`{"roomId":"r1","userId":"u1","displayName":"Ada"}`)))
	env.gateway.last(t, "c1", EventRoomJoined)

	member := Caller{ConnectionID: "c2"}
	require.Nil(t, env.engine.Dispatch(ctx, member, "joinRoom", json.RawMessage(`{"roomId":"r1","displayName":"Bo"}`)))

	require.Nil(t, env.engine.Dispatch(ctx, host, "startTimer", json.RawMessage(`{"roomId":"r1"}`)))
	assert.True(t, env.timer(t, "r1").Running)

	apiErr := env.engine.Dispatch(ctx, member, "pauseTimer", json.RawMessage(`{"roomId":"r1"}`))
	require.NotNil(t, apiErr)
	assert.Equal(t, apperrors.CodeForbidden, env.gateway.last(t, "c2", EventError).Data.(Rejection).Code)
	assert.Empty(t, env.gateway.named("c1", EventError), "rejections are never broadcast")

	require.Nil(t, env.engine.Dispatch(ctx, member, "leaveRoom", json.RawMessage(`{"roomId":"r1"}`)))
	assert.Equal(t, 1, env.engine.Registry().ParticipantCount("r1"))
}

func TestChatAndRelay(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.create(t, "r1", "c1", "u1")
	env.join(t, "r1", "c2", "u2")
	env.join(t, "r1", "c3", "u3")

	require.Nil(t, env.engine.SendMessage(ctx, Caller{ConnectionID: "c2"}, SendMessageRequest{RoomID: "r1", Text: "  hello  "}))
	msg := env.gateway.last(t, "c3", EventChatMessage).Data.(ChatMessage)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "c2", msg.ConnectionID)
	assert.False(t, msg.System)

	for _, text := range []string{"   ", strings.Repeat("a", 2001)} {
		apiErr := env.engine.SendMessage(ctx, Caller{ConnectionID: "c2"}, SendMessageRequest{RoomID: "r1", Text: text})
		require.NotNil(t, apiErr)
		assert.Equal(t, apperrors.CodeInvalidRequest, apiErr.Code)
	}

	require.Nil(t, env.engine.PeerReady(ctx, Caller{ConnectionID: "c1"}, "r1"))
	assert.Empty(t, env.gateway.named("c1", EventPeerReady))
	assert.Len(t, env.gateway.named("c2", EventPeerReady), 1)
	assert.Len(t, env.gateway.named("c3", EventPeerReady), 1)

	payload := json.RawMessage(`{"sdp":"offer"}`)
	require.Nil(t, env.engine.Signal(ctx, Caller{ConnectionID: "c1"}, SignalRequest{RoomID: "r1", TargetConnectionID: "c3", Payload: payload}))
	assert.Empty(t, env.gateway.named("c2", EventSignal))
	relayed := env.gateway.last(t, "c3", EventSignal).Data.(signalRelay)
	assert.Equal(t, "c1", relayed.SenderConnectionID)
	assert.JSONEq(t, `{"sdp":"offer"}`, string(relayed.Payload))

	apiErr := env.engine.Signal(ctx, Caller{ConnectionID: "c1"}, SignalRequest{RoomID: "r1", TargetConnectionID: "elsewhere"})
	require.NotNil(t, apiErr)
	assert.Equal(t, "participant_not_found", apiErr.Code)
}

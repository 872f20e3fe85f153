package studyroom

import (
	"encoding/json"
	"time"

	"studyroom/backend/internal/model"
)

const (
	EventRoomJoined          = "roomJoined"
	EventParticipantJoined   = "participantJoined"
	EventParticipantLeft     = "participantLeft"
	EventHostChanged         = "hostChanged"
	EventUserKicked          = "userKicked"
	EventTaskUpdated         = "taskUpdated"
	EventSubtaskStateChanged = "subtaskStateChanged"
	EventSettingsUpdated     = "settingsUpdated"
	EventTimerUpdate         = "timerUpdate"
	EventTomatoRewarded      = "tomatoRewarded"
	EventRoomStatsUpdated    = "roomStatsUpdated"
	EventShowReadyCheck      = "showReadyCheck"
	EventReadyStatusUpdate   = "readyStatusUpdate"
	EventChatMessage         = "chatMessage"
	EventPeerReady           = "peerReady"
	EventSignal              = "signal"
	EventRoomError           = "roomError"
	EventError               = "error"
)

// Event is one outbound frame for the Session Gateway.
type Event struct {
	Name string
	Data interface{}
}

type RoomStats struct {
	TotalCycles int `json:"totalCycles"`
}

type TaskView struct {
	TaskRef  model.TaskRef   `json:"taskRef"`
	Title    string          `json:"title"`
	Subtasks []model.Subtask `json:"subtasks"`
}

type RoomJoined struct {
	RoomID           string                 `json:"roomId"`
	ConnectionID     string                 `json:"connectionId"`
	HostUserID       string                 `json:"hostUserId,omitempty"`
	Participants     map[string]Participant `json:"participants"`
	ParticipantOrder []string               `json:"participantOrder"`
	IsPrivate        bool                   `json:"isPrivate"`
	TimerState       TimerState             `json:"timerState"`
	Settings         model.Settings         `json:"settings"`
	Stats            RoomStats              `json:"stats"`
	CurrentTask      *TaskView              `json:"currentTask"`
}

type participantLeft struct {
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
}

type hostChanged struct {
	NewHostUserID string `json:"newHostUserId"`
	Automatic     bool   `json:"automatic"`
}

type userKicked struct {
	TargetConnectionID string `json:"targetConnectionId"`
	DisplayName        string `json:"displayName"`
}

type subtaskStateChanged struct {
	SubtaskID int64 `json:"subtaskId"`
	Checked   bool  `json:"checked"`
}

type tomatoRewarded struct {
	Cycle   int      `json:"cycle"`
	UserIDs []string `json:"userIds"`
	Message string   `json:"message"`
}

type readyStatus struct {
	ReadyCount        int `json:"readyCount"`
	TotalParticipants int `json:"totalParticipants"`
}

type ChatMessage struct {
	ConnectionID string    `json:"connectionId,omitempty"`
	DisplayName  string    `json:"displayName"`
	AvatarRef    string    `json:"avatarRef,omitempty"`
	Text         string    `json:"text"`
	System       bool      `json:"system"`
	SentAt       time.Time `json:"sentAt"`
}

type peerReady struct {
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
}

type signalRelay struct {
	SenderConnectionID string          `json:"senderConnectionId"`
	Payload            json.RawMessage `json:"payload"`
}

// Rejection is sent only to the connection whose action failed.
type Rejection struct {
	Action  string `json:"action"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type roomError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

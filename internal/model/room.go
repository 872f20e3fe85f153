package model

import (
	"fmt"
	"time"
)

const (
	ModeFocus      = "focus"
	ModeShortBreak = "shortBreak"
	ModeLongBreak  = "longBreak"
)

const (
	SessionTypeFocus = "focus"

	SessionStatusCompleted   = "completed"
	SessionStatusInterrupted = "interrupted"
)

type Room struct {
	ID                string     `json:"roomId"`
	HostUserID        *string    `json:"hostUserId"`
	Name              string     `json:"name"`
	Secret            *string    `json:"-"`
	CurrentTask       *TaskRef   `json:"currentTask,omitempty"`
	FocusMinutes      int        `json:"focusMinutes"`
	ShortBreakMinutes int        `json:"shortBreakMinutes"`
	LongBreakMinutes  int        `json:"longBreakMinutes"`
	TotalFocusCycles  int        `json:"totalFocusCycles"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         *time.Time `json:"updatedAt,omitempty"`
}

func (r *Room) Settings() Settings {
	return Settings{
		Focus:      r.FocusMinutes,
		ShortBreak: r.ShortBreakMinutes,
		LongBreak:  r.LongBreakMinutes,
	}
}

func (r *Room) IsPrivate() bool {
	return r.Secret != nil && *r.Secret != ""
}

func (r *Room) HostID() string {
	if r.HostUserID == nil {
		return ""
	}
	return *r.HostUserID
}

// Settings are phase durations in whole minutes.
type Settings struct {
	Focus      int `json:"focus"`
	ShortBreak int `json:"shortBreak"`
	LongBreak  int `json:"longBreak"`
}

func (s Settings) MinutesFor(mode string) int {
	switch mode {
	case ModeShortBreak:
		return s.ShortBreak
	case ModeLongBreak:
		return s.LongBreak
	default:
		return s.Focus
	}
}

func (s Settings) SecondsFor(mode string) int {
	return s.MinutesFor(mode) * 60
}

type TaskKind string

const (
	TaskKindPersonal TaskKind = "personal"
	TaskKindCard     TaskKind = "card"
)

// TaskRef points at either a personal task or a workspace card.
type TaskRef struct {
	Kind TaskKind `json:"kind"`
	ID   int64    `json:"id"`
}

func PersonalTask(id int64) TaskRef {
	return TaskRef{Kind: TaskKindPersonal, ID: id}
}

func WorkspaceCard(id int64) TaskRef {
	return TaskRef{Kind: TaskKindCard, ID: id}
}

func (r TaskRef) Valid() bool {
	return (r.Kind == TaskKindPersonal || r.Kind == TaskKindCard) && r.ID > 0
}

func (r TaskRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

type Subtask struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Checked        bool   `json:"checked"`
	ChecklistTitle string `json:"checklistTitle,omitempty"`
}

type TaskDisplay struct {
	Ref      TaskRef   `json:"taskRef"`
	Title    string    `json:"title"`
	Subtasks []Subtask `json:"subtasks"`
}

type RoomHistoryEntry struct {
	UserID       string    `json:"userId"`
	RoomID       string    `json:"roomId"`
	RoomName     string    `json:"roomName"`
	LastJoinedAt time.Time `json:"lastJoinedAt"`
}

type FocusSession struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	RoomID          string    `json:"roomId,omitempty"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	DurationMinutes int       `json:"durationMinutes"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	TaskRef         *TaskRef  `json:"taskRef,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

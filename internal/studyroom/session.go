package studyroom

import (
	"context"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"studyroom/backend/internal/model"
)

type Participant struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId,omitempty"`
	DisplayName  string    `json:"displayName"`
	AvatarRef    string    `json:"avatarRef,omitempty"`
	JoinedAt     time.Time `json:"joinedAt"`
}

type TimerState struct {
	Mode                 string `json:"mode"`
	PhaseDurationSeconds int    `json:"phaseDurationSeconds"`
	RemainingSeconds     int    `json:"remainingSeconds"`
	Running              bool   `json:"running"`
	Cycle                int    `json:"cycle"`
	AwaitingReady        bool   `json:"awaitingReady"`
}

func initialTimer(settings model.Settings) TimerState {
	return TimerState{
		Mode:                 model.ModeFocus,
		PhaseDurationSeconds: settings.SecondsFor(model.ModeFocus),
		RemainingSeconds:     settings.SecondsFor(model.ModeFocus),
		Running:              false,
		Cycle:                1,
	}
}

type timerLoop struct {
	gen    uint64
	cancel context.CancelFunc
}

// session is the in-memory state of one active room. Every field is guarded
// by mu; closed is set once the room has been destroyed and never cleared.
type session struct {
	mu sync.Mutex

	id             string
	closed         bool
	order          []string
	participants   map[string]*Participant
	timer          TimerState
	ready          map[string]struct{}
	settings       model.Settings
	currentTask    *model.TaskRef
	totalCycles    int
	phaseStartedAt time.Time
	loop           *timerLoop
}

func newSession(room *model.Room) *session {
	settings := room.Settings()
	s := &session{
		id:           room.ID,
		participants: make(map[string]*Participant),
		timer:        initialTimer(settings),
		ready:        make(map[string]struct{}),
		settings:     settings,
		totalCycles:  room.TotalFocusCycles,
	}
	if room.CurrentTask != nil {
		ref := *room.CurrentTask
		s.currentTask = &ref
	}
	return s
}

// addParticipant appends p in join order. A connection that is already
// present keeps its original position.
func (s *session) addParticipant(p *Participant) {
	if _, ok := s.participants[p.ConnectionID]; !ok {
		s.order = append(s.order, p.ConnectionID)
	}
	s.participants[p.ConnectionID] = p
}

// removeParticipant is idempotent; it returns nil when connID is absent.
func (s *session) removeParticipant(connID string) *Participant {
	p, ok := s.participants[connID]
	if !ok {
		return nil
	}
	delete(s.participants, connID)
	delete(s.ready, connID)
	if i := slices.Index(s.order, connID); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	return p
}

// earliest returns the longest connected participant.
func (s *session) earliest() *Participant {
	if len(s.order) == 0 {
		return nil
	}
	return s.participants[s.order[0]]
}

func (s *session) empty() bool {
	return len(s.participants) == 0
}

func (s *session) userIDs() []string {
	ids := make([]string, 0, len(s.order))
	for _, connID := range s.order {
		if p := s.participants[connID]; p != nil && p.UserID != "" {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

func (s *session) hasUser(userID string) bool {
	for _, p := range s.participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func (s *session) participantsSnapshot() map[string]Participant {
	out := make(map[string]Participant, len(s.participants))
	for id, p := range s.participants {
		out[id] = *p
	}
	return out
}

func (s *session) orderSnapshot() []string {
	return slices.Clone(s.order)
}

package studyroom

import "sync"

// Registry maps room ids to active sessions. Its lock only guards the map;
// room state is guarded by each session's own mutex, and the registry lock
// is never held while acquiring a session lock.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*session
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*session)}
}

func (r *Registry) get(roomID string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.rooms[roomID]
	return s, ok
}

// loadOrStore keeps the first session registered for a room id.
func (r *Registry) loadOrStore(s *session) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.rooms[s.id]; ok {
		return existing, true
	}
	r.rooms[s.id] = s
	return s, false
}

// remove drops the entry only if it still points at s.
func (r *Registry) remove(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.rooms[s.id]; ok && current == s {
		delete(r.rooms, s.id)
	}
}

func (r *Registry) snapshot() []*session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session, 0, len(r.rooms))
	for _, s := range r.rooms {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Has(roomID string) bool {
	_, ok := r.get(roomID)
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// ParticipantCount reports how many connections are in an active room.
func (r *Registry) ParticipantCount(roomID string) int {
	s, ok := r.get(roomID)
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}

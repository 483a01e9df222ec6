package taskory

import (
	"context"
	"sync"
)

// DefaultHistoryLimit caps the conversation history kept per session.
const DefaultHistoryLimit = 20

// PermissionRequest records the single confirmation the scheduler is
// waiting on before it dispatches a gated task.
type PermissionRequest struct {
	TaskID     string     `json:"task_id"`
	Capability Capability `json:"capability"`
}

// Session is the per-conversation state. One session per logical
// conversation, created lazily on first message, living for the
// process lifetime. All plan mutation within a session is serialized
// through its mutex; different sessions are fully independent.
type Session struct {
	mu sync.Mutex

	id           string
	history      []Message
	historyLimit int

	activePlan *Plan
	executed   map[string]struct{}
	skipped    map[string]struct{}
	allowed    map[string]struct{}
	pending    *PermissionRequest
	mode       ExecutionMode
	lastRun    *PlanRun
}

func newSession(id string, historyLimit int, mode ExecutionMode) *Session {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Session{
		id:           id,
		historyLimit: historyLimit,
		executed:     map[string]struct{}{},
		skipped:      map[string]struct{}{},
		allowed:      map[string]struct{}{},
		mode:         mode,
	}
}

func (s *Session) ID() string { return s.id }

// appendMessage adds a turn to the bounded FIFO history, evicting the
// oldest messages beyond the limit.
func (s *Session) appendMessage(msg Message) {
	s.history = append(s.history, msg)
	if over := len(s.history) - s.historyLimit; over > 0 {
		s.history = s.history[over:]
	}
}

func (s *Session) historyCopy() []Message {
	return append([]Message(nil), s.history...)
}

// setPlan attaches a freshly proposed plan, resetting all plan-scoped
// bookkeeping from any previous plan.
func (s *Session) setPlan(plan *Plan) {
	s.activePlan = plan
	s.executed = map[string]struct{}{}
	s.skipped = map[string]struct{}{}
	s.allowed = map[string]struct{}{}
	s.pending = nil
	s.lastRun = nil
}

// clearPlan discards the active plan and its bookkeeping.
func (s *Session) clearPlan() {
	s.setPlan(nil)
}

// SessionStore is an explicit key-value store with session-scoped
// ownership. Implementations must be safe for concurrent use;
// in-process state is the norm, eviction is a deployment concern.
type SessionStore interface {
	// Load retrieves a session by ID. Returns nil session and nil
	// error if the ID is not known.
	Load(ctx context.Context, id string) (*Session, error)

	// Save persists a session handle under its ID.
	Save(ctx context.Context, session *Session) error
}

// memorySessionStore is the default in-memory SessionStore.
type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemorySessionStore returns a concurrency-safe in-memory session
// store.
func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{sessions: map[string]*Session{}}
}

func (s *memorySessionStore) Load(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id], nil
}

func (s *memorySessionStore) Save(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.id] = session
	return nil
}

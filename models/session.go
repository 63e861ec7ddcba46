package models

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
)

const (
	// ErrTypeSessionExists is the error type returned when a session is added
	// twice to a store.
	ErrTypeSessionExists = "session-exists"
)

// Session represents a shared space where participants feed and query the
// same spatial data.
type Session struct {
	ID          uint32
	SessionUUID string

	AppKey string

	// Persistent sessions outlive their participants. They are created and
	// deleted over HTTP.
	Persistent bool

	participantIDs   SequentialIDGenerator[uint32]
	participantMutex sync.RWMutex
	participants     map[uint32]*Participant

	moduleStates map[string]any
	moduleMutex  sync.RWMutex
}

func NewSession(id uint32) *Session {
	return &Session{
		ID:           id,
		SessionUUID:  uuid.New().String(),
		participants: make(map[uint32]*Participant),
		moduleStates: make(map[string]any),
	}
}

func (s *Session) NewParticipantID() uint32 {
	return s.participantIDs.New()
}

func (s *Session) AddParticipant(p *Participant) {
	s.participantMutex.Lock()
	defer s.participantMutex.Unlock()

	if _, ok := s.participants[p.ID]; ok {
		return
	}
	s.participants[p.ID] = p
	instrumentParticipants(s.AppKey, 1)
}

func (s *Session) RemoveParticipant(p *Participant) {
	s.participantMutex.Lock()
	defer s.participantMutex.Unlock()

	if _, ok := s.participants[p.ID]; !ok {
		return
	}
	delete(s.participants, p.ID)
	s.participantIDs.Reuse(p.ID)
	instrumentParticipants(s.AppKey, -1)
}

// GetParticipants returns the participants ordered by ID.
func (s *Session) GetParticipants() []*Participant {
	s.participantMutex.RLock()
	defer s.participantMutex.RUnlock()

	participants := make([]*Participant, 0, len(s.participants))
	for _, p := range s.participants {
		participants = append(participants, p)
	}
	slices.SortFunc(participants, func(a, b *Participant) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return participants
}

func (s *Session) ParticipantCount() int {
	s.participantMutex.RLock()
	defer s.participantMutex.RUnlock()

	return len(s.participants)
}

func (s *Session) SetModuleState(moduleName string, state any) {
	s.moduleMutex.Lock()
	defer s.moduleMutex.Unlock()

	s.moduleStates[moduleName] = state
}

func (s *Session) ModuleState(moduleName string) (any, bool) {
	s.moduleMutex.RLock()
	defer s.moduleMutex.RUnlock()

	state, ok := s.moduleStates[moduleName]
	return state, ok
}

// LoadOrInitModuleState returns the state of the given module, creating it
// with newState when the session has none yet. newState is called at most
// once per module.
func (s *Session) LoadOrInitModuleState(moduleName string, newState func() (any, error)) (any, error) {
	if state, ok := s.ModuleState(moduleName); ok {
		return state, nil
	}

	s.moduleMutex.Lock()
	defer s.moduleMutex.Unlock()

	if state, ok := s.moduleStates[moduleName]; ok {
		return state, nil
	}

	state, err := newState()
	if err != nil {
		return nil, errors.New("initializing module state failed").
			WithTag("module", moduleName).
			WithTag("session_uuid", s.SessionUUID).
			Wrap(err)
	}
	s.moduleStates[moduleName] = state
	return state, nil
}

// closeModuleStates releases the module states implementing io.Closer.
func (s *Session) closeModuleStates() {
	s.moduleMutex.RLock()
	defer s.moduleMutex.RUnlock()

	for name, state := range s.moduleStates {
		c, ok := state.(io.Closer)
		if !ok {
			continue
		}

		if err := c.Close(); err != nil {
			logs.WithTag("module", name).
				WithTag("session_uuid", s.SessionUUID).
				Warn(errors.New("closing module state failed").Wrap(err))
		}
	}
}

// SessionStore is the store that holds the sessions served by a server.
type SessionStore struct {
	// The prefix of global session ids.
	ServerID string

	initOnce sync.Once
	mutex    sync.RWMutex
	sessions map[string]*Session
	ids      SequentialIDGenerator[uint32]
}

func (s *SessionStore) init() {
	s.sessions = map[string]*Session{}

	if s.ServerID == "" {
		s.ServerID = "ted"
	}
}

func (s *SessionStore) NewID() uint32 {
	return s.ids.New()
}

func (s *SessionStore) Add(ctx context.Context, session *Session) error {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id := s.GlobalSessionID(session.ID)
	if _, ok := s.sessions[id]; ok {
		return errors.New("session already added").
			WithType(ErrTypeSessionExists).
			WithTag("session_id", id)
	}
	s.sessions[id] = session

	logs.WithTag("session_id", id).
		WithTag("session_uuid", session.SessionUUID).
		WithTag("persistent", session.Persistent).
		Debug("session added")

	instrumentIncreaseSessionGauge(session.AppKey)
	instrumentCountSession(session.AppKey)
	return nil
}

func (s *SessionStore) Remove(ctx context.Context, session *Session) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	// The id may already belong to a newer session when session was removed
	// earlier.
	id := s.GlobalSessionID(session.ID)
	if stored, ok := s.sessions[id]; !ok || stored != session {
		return
	}
	delete(s.sessions, id)
	s.ids.Reuse(session.ID)
	session.closeModuleStates()

	logs.WithTag("session_id", id).
		WithTag("session_uuid", session.SessionUUID).
		Debug("session removed")

	instrumentDecreaseSessionGauge(session.AppKey)
}

func (s *SessionStore) GetByGlobalID(v string) (*Session, bool) {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	session, ok := s.sessions[v]
	return session, ok
}

// List returns the stored sessions ordered by ID.
func (s *SessionStore) List() []*Session {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	slices.SortFunc(sessions, func(a, b *Session) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return sessions
}

func (s *SessionStore) GlobalSessionID(sessionID uint32) string {
	s.initOnce.Do(s.init)
	return fmt.Sprintf("%sx%x", s.ServerID, sessionID)
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/nightline-game/nightline/internal/storage"
	"github.com/nightline-game/nightline/pkg/callflow"
	"github.com/nightline-game/nightline/pkg/scenario"
	"github.com/nightline-game/nightline/pkg/state"
)

// Session is one live night: the engine plus its collaborators. The mutex
// serializes player actions and ticks; the engine itself is single-threaded.
type Session struct {
	mu sync.Mutex

	ID      uuid.UUID
	Profile string
	Night   *scenario.Night

	Engine   *callflow.Engine
	Flags    *state.FlagStore
	Evidence *callflow.MemoryEvidenceLedger
	Trust    *callflow.MemoryTrustGraph
	World    *callflow.SimWorld

	gs *state.SessionState
}

// Lock serializes access for a multi-step engine interaction.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// Snapshot returns the session's persisted form, refreshed from the engine.
// Callers must hold the session lock.
func (s *Session) Snapshot() *state.SessionState {
	s.gs.TimeMinutes = s.World.CurrentTimeMinutes()
	s.gs.DiscoveredEvidence = s.Evidence.Discovered()
	s.Engine.Snapshot(s.gs)
	return s.gs
}

// SessionManager owns the live sessions. Engines are memory-resident;
// storage holds checkpoints so a session survives a process restart at
// between-call boundaries.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	storage storage.Storage
	logger  *slog.Logger

	// onEvent, when set, is subscribed to every new session's engine.
	onEvent func(sessionID uuid.UUID) callflow.Listener
}

// NewSessionManager creates a session manager over the given storage.
func NewSessionManager(st storage.Storage, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[uuid.UUID]*Session),
		storage:  st,
		logger:   logger,
	}
}

// OnSessionEvents registers a per-session listener factory, applied to
// sessions created or restored after the call.
func (m *SessionManager) OnSessionEvents(fn func(sessionID uuid.UUID) callflow.Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvent = fn
}

// Create starts a new session for a night file, importing the profile's
// persistent flags before the first call can ring.
func (m *SessionManager) Create(ctx context.Context, nightFile, profile string) (*Session, error) {
	night, err := m.storage.GetNight(ctx, nightFile)
	if err != nil {
		return nil, err
	}
	if warnings := night.Validate(); len(warnings) > 0 {
		for _, w := range warnings {
			m.logger.Warn("Night content warning", "night", night.ID, "warning", w)
		}
	}

	progress, err := m.storage.LoadProgress(ctx, profile)
	if err != nil {
		return nil, err
	}

	gs := state.NewSessionState(nightFile)
	gs.NightID = night.ID
	gs.Profile = profile

	s, err := m.build(night, gs)
	if err != nil {
		return nil, err
	}
	if len(progress.PersistentFlags) > 0 {
		s.Flags.Import(progress.PersistentFlags)
	}

	if err := m.storage.SaveSession(ctx, s.ID, s.Snapshot()); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info("Session created",
		"session", s.ID, "night", night.ID, "profile", profile)
	return s, nil
}

// Get returns a live session, restoring it from storage if the engine is
// not memory-resident. Returns (nil, nil) when the session does not exist.
func (m *SessionManager) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	gs, err := m.storage.LoadSession(ctx, id)
	if err != nil || gs == nil {
		return nil, err
	}

	night, err := m.storage.GetNight(ctx, gs.NightFile)
	if err != nil {
		return nil, err
	}

	s, err = m.build(night, gs)
	if err != nil {
		return nil, err
	}
	s.Flags.Import(gs.SetFlags)
	s.Evidence.Import(gs.DiscoveredEvidence)
	s.World.SetTime(gs.TimeMinutes)
	s.Engine.Restore(gs)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("Session restored", "session", id, "night", night.ID)
	return s, nil
}

// Delete removes a session from memory and storage.
func (m *SessionManager) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return m.storage.DeleteSession(ctx, id)
}

// Checkpoint persists a session's current snapshot. Callers must hold the
// session lock.
func (m *SessionManager) Checkpoint(ctx context.Context, s *Session) error {
	return m.storage.SaveSession(ctx, s.ID, s.Snapshot())
}

// Resolve runs end-state resolution, records the outcome on the session
// and in the profile's cross-night progress, and checkpoints. Callers must
// hold the session lock.
func (m *SessionManager) Resolve(ctx context.Context, s *Session) (endState, endingID string, err error) {
	endState, endingID = s.Engine.Resolve(nil)
	s.gs.EndState = endState
	s.gs.EndingID = endingID

	if s.Profile != "" {
		progress, err := m.storage.LoadProgress(ctx, s.Profile)
		if err != nil {
			return "", "", err
		}
		progress.RecordNight(s.Night.ID, endState, s.Flags.PersistentFlags())
		if err := m.storage.SaveProgress(ctx, s.Profile, progress); err != nil {
			return "", "", err
		}
	}

	if err := m.Checkpoint(ctx, s); err != nil {
		return "", "", err
	}

	m.logger.Info("Night resolved",
		"session", s.ID, "end_state", endState, "ending", endingID)
	return endState, endingID, nil
}

func (m *SessionManager) build(night *scenario.Night, gs *state.SessionState) (*Session, error) {
	flags := state.NewFlagStore(m.logger)
	if err := flags.Initialize(night.ID, night.Flags, night.Exclusions); err != nil {
		return nil, fmt.Errorf("failed to initialize flag store: %w", err)
	}

	s := &Session{
		ID:       gs.ID,
		Profile:  gs.Profile,
		Night:    night,
		Flags:    flags,
		Evidence: callflow.NewMemoryEvidenceLedger(),
		Trust:    callflow.NewMemoryTrustGraph(),
		World:    callflow.NewSimWorld(night.StartTimeMinutes),
		gs:       gs,
	}
	s.Engine = callflow.NewEngine(night, flags, s.Evidence, s.Trust, s.World, m.logger)

	m.mu.RLock()
	onEvent := m.onEvent
	m.mu.RUnlock()
	if onEvent != nil {
		s.Engine.Subscribe(onEvent(s.ID))
	}

	return s, nil
}

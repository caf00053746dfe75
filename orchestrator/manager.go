package orchestrator

import (
	"context"
	"sync"

	"github.com/parleyhq/parley/agent"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
)

// Manager owns the live orchestrators for a process, one per room. Rooms are
// materialized lazily from the store on first access and run until Shutdown.
type Manager struct {
	store  core.Store
	binder agent.Binder
	logger logging.Logger
	cfg    Config

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	rooms map[string]*managedRoom
}

type managedRoom struct {
	orch   *Orchestrator
	cancel context.CancelFunc
}

func NewManager(store core.Store, binder agent.Binder, logger logging.Logger, cfg Config) *Manager {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:  store,
		binder: binder,
		logger: logger,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		rooms:  make(map[string]*managedRoom),
	}
}

// Get returns the live orchestrator for roomID, starting one from persisted
// state when none is running yet.
func (m *Manager) Get(roomID string) (*Orchestrator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mr, ok := m.rooms[roomID]; ok {
		return mr.orch, nil
	}

	room, roster, err := m.store.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	o, err := New(room, roster, m.store, m.binder, m.logger, m.cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.rooms[roomID] = &managedRoom{orch: o, cancel: cancel}
	go o.Run(ctx)
	m.logger.Info("orchestrator started", "room_id", roomID)
	return o, nil
}

// Remove stops the room's reactor, if one is running, and waits for it to
// exit. Used when a room is deleted; removing an unknown room is a no-op.
func (m *Manager) Remove(roomID string) {
	m.mu.Lock()
	mr, ok := m.rooms[roomID]
	delete(m.rooms, roomID)
	m.mu.Unlock()
	if !ok {
		return
	}
	mr.cancel()
	<-mr.orch.Done()
	m.logger.Info("orchestrator removed", "room_id", roomID)
}

// Shutdown stops every orchestrator and waits for their reactors to exit.
func (m *Manager) Shutdown() {
	m.cancel()
	m.mu.Lock()
	rooms := make([]*managedRoom, 0, len(m.rooms))
	for _, mr := range m.rooms {
		rooms = append(rooms, mr)
	}
	m.rooms = make(map[string]*managedRoom)
	m.mu.Unlock()
	for _, mr := range rooms {
		<-mr.orch.Done()
	}
}

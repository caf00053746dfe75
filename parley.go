// Package parley provides a high-level façade over the discussion
// orchestrator and its services (room store, agent binding & logging) for
// embedding multi-agent discussions in a host application. Most applications
// interact with this package by:
//  1. Creating a Parley via New() (optionally overriding the default
//     in-memory store, binder and logger)
//  2. Creating a room with its participant roster
//  3. Subscribing to the room's event stream and sending control signals
//
// The façade delegates all turn scheduling to orchestrator.Manager while
// keeping setup concise. The defaults are safe for local development and
// testing; server deployments typically supply a durable store and real
// agent backends via cmd/parley.
package parley

import (
	"fmt"
	"time"

	"github.com/parleyhq/parley/agent"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/orchestrator"
	"github.com/parleyhq/parley/store"
)

// Options configures the Parley instance.
type Options struct {
	// Store persists rooms and messages (defaults to in-memory).
	Store core.Store

	// Binder maps participant agent types to backends (defaults to mock
	// handles, suitable for tests and demos only).
	Binder agent.Binder

	// Orchestration tunes per-room timeouts and pacing.
	Orchestration orchestrator.Config

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Parley is the high-level façade aggregating the store and the per-room
// orchestrator manager.
type Parley struct {
	opts    Options
	manager *orchestrator.Manager
}

// New creates a new Parley instance with optional overrides.
func New(optFns ...func(o *Options)) *Parley {
	opts := Options{
		Store: store.NewInMemoryStore(),
		Binder: func(participantID, agentType string) (agent.Handle, error) {
			return agent.NewMockHandle(participantID), nil
		},
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Parley{
		opts:    opts,
		manager: orchestrator.NewManager(opts.Store, opts.Binder, opts.Logger, opts.Orchestration),
	}
}

// Store exposes the configured room store.
func (p *Parley) Store() core.Store { return p.opts.Store }

// Manager exposes the per-room orchestrator manager.
func (p *Parley) Manager() *orchestrator.Manager { return p.manager }

// CreateRoom persists a room with its roster and starts its orchestrator in
// the waiting state. The roster is fixed for the life of the room.
func (p *Parley) CreateRoom(room *core.Room, participants []core.Participant) (*orchestrator.Orchestrator, error) {
	if room.ID == "" {
		room.ID = core.NewID()
	}
	if room.Status == "" {
		room.Status = core.RoomWaiting
	}
	now := time.Now().UTC()
	if room.Created.IsZero() {
		room.Created = now
	}
	room.Updated = now
	for i := range participants {
		if participants[i].ID == "" {
			participants[i].ID = core.NewID()
		}
		participants[i].RoomID = room.ID
	}
	if err := p.opts.Store.CreateRoom(room, participants); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return p.manager.Get(room.ID)
}

// Room returns the live orchestrator for a persisted room.
func (p *Parley) Room(id string) (*orchestrator.Orchestrator, error) {
	return p.manager.Get(id)
}

// Close stops every running room and waits for their reactors to exit.
func (p *Parley) Close() {
	p.manager.Shutdown()
}

package bridge

import (
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/skybridge/internal/geom"
	"github.com/cory-johannsen/skybridge/internal/world"
)

// LifecycleState is the connection state of the world session.
type LifecycleState int

const (
	StateDisconnected LifecycleState = iota
	StateConnecting
	StateConnected
	StateAwaitingRespawn
)

// String returns the state name used in logs.
func (s LifecycleState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAwaitingRespawn:
		return "awaiting_respawn"
	default:
		return "unknown"
	}
}

// Epoch identifies one successful login of the world session.
type Epoch struct {
	// Seq increases by one per login and is never reused within a process.
	Seq uint64
	// ID is logged with every transition of the epoch.
	ID      uuid.UUID
	Started time.Time
}

// Runtime holds all state scoped to a single epoch. A fresh Runtime is built
// on every login and dropped on disconnect; nothing in it outlives its epoch.
//
// Invariant: only the bridge loop goroutine reads or writes a Runtime.
type Runtime struct {
	Epoch   Epoch
	session world.Session
	// self is the locally tracked position of the controlled avatar.
	self    geom.Vec3
	hasSelf bool
	dead    bool
	radar   *Radar
	// flight is the id of the newest flight; older flights stop at their next step.
	flight uint64
}

func newRuntime(seq uint64, session world.Session, radius float64, now time.Time) *Runtime {
	return &Runtime{
		Epoch: Epoch{
			Seq:     seq,
			ID:      uuid.New(),
			Started: now,
		},
		session: session,
		radar:   NewRadar(radius),
	}
}

// Self returns the tracked avatar position and whether one has been reported.
func (rt *Runtime) Self() (geom.Vec3, bool) {
	return rt.self, rt.hasSelf
}

func (rt *Runtime) setSelf(p geom.Vec3) {
	rt.self = p
	rt.hasSelf = true
}

// Dead reports whether the avatar died and has not finished respawning.
func (rt *Runtime) Dead() bool {
	return rt.dead
}

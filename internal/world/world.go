// Package world defines the contract the bridge consumes from the world-protocol client:
// session events, avatar controls, pathfinding goals, and the raw packet transport.
package world

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cory-johannsen/skybridge/internal/geom"
)

// ErrClosed is returned by Session methods once the session has disconnected.
var ErrClosed = errors.New("world session closed")

// Options identifies the world server and the avatar to log in as.
type Options struct {
	Host     string
	Port     int
	Username string
	// Version is a protocol version, or "" to negotiate automatically.
	Version string
	// Auth is the authentication mode passed through to the client.
	Auth string
	// Timeout bounds the dial; zero means no bound beyond ctx.
	Timeout time.Duration
	// ForceGroundContactOff asks the client to report onGround=false on every
	// position packet it writes itself (physics ticks, pathfinder movement)
	// for the whole session. Packets written through Session.WritePacket are
	// covered by GroundContactOverride instead.
	ForceGroundContactOff bool
}

// Addr returns the "host:port" world server address.
func (o Options) Addr() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// EventKind discriminates world session events.
type EventKind string

const (
	EventLogin           EventKind = "login"
	EventSpawn           EventKind = "spawn"
	EventDeath           EventKind = "death"
	EventRespawn         EventKind = "respawn"
	EventEntityAppear    EventKind = "entity_appear"
	EventEntityDisappear EventKind = "entity_disappear"
	EventPosition        EventKind = "position"
	EventChat            EventKind = "chat"
	EventError           EventKind = "error"
	EventDisconnect      EventKind = "disconnect"
)

// EntityKindPlayer is the Entity.Kind of player-controlled avatars.
const EntityKindPlayer = "player"

// Entity is a tracked world entity.
type Entity struct {
	ID       int64
	Kind     string
	Username string
	Position geom.Vec3
}

// IsPlayer reports whether e is a player-controlled avatar.
func (e Entity) IsPlayer() bool {
	return e.Kind == EntityKindPlayer
}

// Event is a single notification from the world session.
// Only the fields relevant to Kind are populated.
type Event struct {
	Kind EventKind
	// Position is the controlled avatar's position for spawn and position events.
	Position geom.Vec3
	// Entity is set for entity_appear and entity_disappear.
	Entity Entity
	// Author and Text are set for chat.
	Author string
	Text   string
	// Err is set for error, and for disconnect when the cause is known.
	Err error
}

// Player is a known avatar as reported by the world session.
type Player struct {
	Username string
	// EntityID is zero when the avatar is listed but not in entity range.
	EntityID int64
	// Position is only meaningful when HasPosition is true.
	Position    geom.Vec3
	HasPosition bool
}

// Visible reports whether the avatar currently has a tracked entity.
func (p Player) Visible() bool {
	return p.EntityID != 0
}

// Goal is a pathfinding goal understood by the world client's pathfinder.
type Goal interface {
	goal()
}

// BlockGoal paths to an exact block coordinate.
type BlockGoal struct {
	X, Y, Z int
}

// FollowGoal keeps the avatar within Range of the entity with EntityID.
type FollowGoal struct {
	EntityID int64
	Username string
	Range    float64
}

func (BlockGoal) goal()  {}
func (FollowGoal) goal() {}

// Movements tunes the pathfinder's allowed moves.
type Movements struct {
	CanDig          bool
	Allow1by1Towers bool
}

// Control names accepted by SetControlState.
const (
	ControlJump  = "jump"
	ControlSneak = "sneak"
)

// Session is one connection of the controlled avatar to the world.
type Session interface {
	// Events delivers session events in arrival order. The channel is closed
	// after the disconnect event.
	Events() <-chan Event
	// Username is the controlled avatar's name.
	Username() string
	// Player looks up a known avatar by name.
	Player(name string) (Player, bool)
	Chat(ctx context.Context, text string) error
	SetControlState(ctx context.Context, control string, on bool) error
	SetMovements(ctx context.Context, m Movements) error
	// SetGoal sets the pathfinding goal; nil clears it.
	SetGoal(ctx context.Context, g Goal) error
	Respawn(ctx context.Context) error
	// WritePacket sends a raw protocol packet through the middleware chain.
	WritePacket(ctx context.Context, name string, payload Payload) error
	// Use appends outbound middleware. Middleware applies to every later write.
	Use(mw ...Middleware)
	Close() error
}

// Dialer opens world sessions.
type Dialer interface {
	Dial(ctx context.Context, opts Options) (Session, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, opts Options) (Session, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, opts Options) (Session, error) { return f(ctx, opts) }

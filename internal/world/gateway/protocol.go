// Package gateway implements world.Session over a websocket connection to a
// world-protocol gateway process. Messages in both directions are JSON
// envelopes of the form {"type": ..., "payload": ...}.
package gateway

import (
	"encoding/json"

	"github.com/cory-johannsen/skybridge/internal/geom"
)

// Outbound envelope types.
const (
	TypeConnect   = "connect"
	TypeChat      = "chat"
	TypeControl   = "control"
	TypeMovements = "movements"
	TypeGoal      = "goal"
	TypeRespawn   = "respawn"
	TypePacket    = "packet"
)

// Inbound envelope types.
const (
	TypeLogin        = "login"
	TypeSpawn        = "spawn"
	TypeDeath        = "death"
	TypeRespawned    = "respawn"
	TypeEntitySpawn  = "entity_spawn"
	TypeEntityGone   = "entity_gone"
	TypeEntityMoved  = "entity_moved"
	TypePlayerJoined = "player_joined"
	TypePlayerLeft   = "player_left"
	TypeMove         = "move"
	TypeChatMessage  = "chat"
	TypeError        = "error"
	TypeEnd          = "end"
)

type clientEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type serverEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v vec3) geom() geom.Vec3 { return geom.V(v.X, v.Y, v.Z) }

type connectPayload struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	// Version is omitted to let the gateway negotiate.
	Version string `json:"version,omitempty"`
	Auth    string `json:"auth"`
	// ForceGroundContactOff makes the gateway rewrite onGround=false on its
	// own position packets before they reach the server.
	ForceGroundContactOff bool `json:"forceGroundContactOff"`
}

type chatPayload struct {
	Text string `json:"text"`
}

type controlPayload struct {
	Control string `json:"control"`
	State   bool   `json:"state"`
}

type movementsPayload struct {
	CanDig          bool `json:"canDig"`
	Allow1by1Towers bool `json:"allow1by1towers"`
}

type goalPayload struct {
	Kind     string  `json:"kind"`
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Z        int     `json:"z"`
	EntityID int64   `json:"entityId,omitempty"`
	Username string  `json:"username,omitempty"`
	Range    float64 `json:"range,omitempty"`
}

type packetPayload struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data"`
}

type loginPayload struct {
	Username string `json:"username"`
}

type positionPayload struct {
	Position vec3 `json:"position"`
}

type entityPayload struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Username string `json:"username"`
	Position vec3   `json:"position"`
}

type entityEnvelope struct {
	Entity entityPayload `json:"entity"`
}

type playerPayload struct {
	Username string `json:"username"`
}

type chatMessagePayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type endPayload struct {
	Reason string `json:"reason"`
}

package world

import (
	"context"
	"strings"
)

// Payload is the field map of a raw protocol packet.
type Payload map[string]any

// FieldOnGround is the ground-contact field of position packets.
const FieldOnGround = "onGround"

// PacketWriter transmits a raw packet.
type PacketWriter interface {
	WritePacket(ctx context.Context, name string, payload Payload) error
}

// PacketWriterFunc adapts a function to the PacketWriter interface.
type PacketWriterFunc func(ctx context.Context, name string, payload Payload) error

// WritePacket calls f.
func (f PacketWriterFunc) WritePacket(ctx context.Context, name string, payload Payload) error {
	return f(ctx, name, payload)
}

// Middleware wraps a PacketWriter with an outbound stage.
type Middleware func(next PacketWriter) PacketWriter

// Chain wraps w so that mw[0] sees each packet first.
func Chain(w PacketWriter, mw ...Middleware) PacketWriter {
	for i := len(mw) - 1; i >= 0; i-- {
		w = mw[i](w)
	}
	return w
}

// positionPackets lists the serverbound packets that carry the avatar's
// position or ground state in protocol versions without the player_ prefix.
var positionPackets = map[string]bool{
	"position":      true,
	"position_look": true,
	"look":          true,
	"flying":        true,
}

// IsPositionPacket reports whether name denotes a player position update.
func IsPositionPacket(name string) bool {
	return positionPackets[name] || strings.HasPrefix(name, "player_")
}

// GroundContactOverride forces onGround=false on every position packet that
// carries the field, so the server never accrues fall distance for the avatar.
// It must be installed for the whole session, not only while flying.
func GroundContactOverride(next PacketWriter) PacketWriter {
	return PacketWriterFunc(func(ctx context.Context, name string, payload Payload) error {
		if IsPositionPacket(name) {
			if _, ok := payload[FieldOnGround]; ok {
				payload[FieldOnGround] = false
			}
		}
		return next.WritePacket(ctx, name, payload)
	})
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skybridge/internal/world"
)

const (
	writeWait   = 10 * time.Second
	eventBuffer = 256
)

// Dialer opens world sessions through the gateway at URL.
type Dialer struct {
	URL    string
	Logger *zap.Logger
}

// NewDialer creates a Dialer for the gateway websocket url.
//
// Precondition: url must be a ws:// or wss:// URL; logger must be non-nil.
func NewDialer(url string, logger *zap.Logger) *Dialer {
	return &Dialer{URL: url, Logger: logger}
}

// Dial connects to the gateway and asks it to log the avatar into the world.
// The returned session reports the login outcome through its event stream.
//
// Postcondition: Returns an open session, or a non-nil error if the gateway
// could not be reached or refused the connect request.
func (d *Dialer) Dial(ctx context.Context, opts world.Options) (world.Session, error) {
	wsDialer := websocket.Dialer{HandshakeTimeout: opts.Timeout}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	conn, _, err := wsDialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing gateway %s: %w", d.URL, err)
	}

	c := newClient(conn, opts.Username, d.Logger)
	if err := c.send(TypeConnect, connectPayload{
		Host:     opts.Host,
		Port:     opts.Port,
		Username: opts.Username,
		Version:  opts.Version,
		Auth:     opts.Auth,

		ForceGroundContactOff: opts.ForceGroundContactOff,
	}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sending connect for %s: %w", opts.Addr(), err)
	}

	go c.readLoop()
	return c, nil
}

// Client is a world.Session backed by a gateway websocket.
type Client struct {
	conn   *websocket.Conn
	logger *zap.Logger
	events chan world.Event
	done   chan struct{}

	writeMu sync.Mutex

	mu       sync.RWMutex
	username string
	players  map[string]*world.Player
	writer   world.PacketWriter
	mws      []world.Middleware
	closed   bool
}

func newClient(conn *websocket.Conn, username string, logger *zap.Logger) *Client {
	c := &Client{
		conn:     conn,
		logger:   logger,
		events:   make(chan world.Event, eventBuffer),
		done:     make(chan struct{}),
		username: username,
		players:  make(map[string]*world.Player),
	}
	c.writer = world.PacketWriterFunc(c.writeRawPacket)
	return c
}

// Events implements world.Session.
func (c *Client) Events() <-chan world.Event {
	return c.events
}

// Username implements world.Session.
func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// Player implements world.Session.
func (c *Client) Player(name string) (world.Player, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.players[name]
	if !ok {
		return world.Player{}, false
	}
	return *p, true
}

// Chat implements world.Session.
func (c *Client) Chat(_ context.Context, text string) error {
	return c.send(TypeChat, chatPayload{Text: text})
}

// SetControlState implements world.Session.
func (c *Client) SetControlState(_ context.Context, control string, on bool) error {
	return c.send(TypeControl, controlPayload{Control: control, State: on})
}

// SetMovements implements world.Session.
func (c *Client) SetMovements(_ context.Context, m world.Movements) error {
	return c.send(TypeMovements, movementsPayload{CanDig: m.CanDig, Allow1by1Towers: m.Allow1by1Towers})
}

// SetGoal implements world.Session.
func (c *Client) SetGoal(_ context.Context, g world.Goal) error {
	switch goal := g.(type) {
	case nil:
		return c.send(TypeGoal, goalPayload{Kind: "none"})
	case world.BlockGoal:
		return c.send(TypeGoal, goalPayload{Kind: "block", X: goal.X, Y: goal.Y, Z: goal.Z})
	case world.FollowGoal:
		return c.send(TypeGoal, goalPayload{Kind: "follow", EntityID: goal.EntityID, Username: goal.Username, Range: goal.Range})
	default:
		return fmt.Errorf("unsupported goal %T", g)
	}
}

// Respawn implements world.Session.
func (c *Client) Respawn(_ context.Context) error {
	return c.send(TypeRespawn, nil)
}

// WritePacket implements world.Session. The packet passes through every
// installed middleware before transmission.
func (c *Client) WritePacket(ctx context.Context, name string, payload world.Payload) error {
	c.mu.RLock()
	w := c.writer
	c.mu.RUnlock()
	return w.WritePacket(ctx, name, payload)
}

// Use implements world.Session.
func (c *Client) Use(mw ...world.Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mws = append(c.mws, mw...)
	c.writer = world.Chain(world.PacketWriterFunc(c.writeRawPacket), c.mws...)
}

// Close implements world.Session. Safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) writeRawPacket(_ context.Context, name string, payload world.Payload) error {
	return c.send(TypePacket, packetPayload{Name: name, Data: payload})
}

func (c *Client) send(typ string, payload any) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return world.ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(clientEnvelope{Type: typ, Payload: payload}); err != nil {
		return fmt.Errorf("writing %s: %w", typ, err)
	}
	return nil
}

func (c *Client) emit(ev world.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// readLoop translates inbound envelopes into events until the connection ends.
//
// Postcondition: Exactly one disconnect event is emitted (unless Close raced it)
// and the events channel is closed.
func (c *Client) readLoop() {
	defer close(c.events)

	var cause error
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				cause = err
			}
			break
		}
		var env serverEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			c.logger.Debug("dropping malformed gateway envelope", zap.Error(err))
			continue
		}
		if env.Type == TypeEnd {
			var p endPayload
			_ = json.Unmarshal(env.Payload, &p)
			if p.Reason != "" {
				cause = errors.New(p.Reason)
			}
			break
		}
		if err := c.handleEnvelope(env); err != nil {
			c.logger.Debug("dropping gateway envelope",
				zap.String("type", env.Type),
				zap.Error(err),
			)
		}
	}

	_ = c.conn.Close()
	c.emit(world.Event{Kind: world.EventDisconnect, Err: cause})
}

func (c *Client) handleEnvelope(env serverEnvelope) error {
	switch env.Type {
	case TypeLogin:
		var p loginPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		if p.Username != "" {
			c.mu.Lock()
			c.username = p.Username
			c.mu.Unlock()
		}
		c.emit(world.Event{Kind: world.EventLogin})

	case TypeSpawn, TypeMove:
		var p positionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		kind := world.EventPosition
		if env.Type == TypeSpawn {
			kind = world.EventSpawn
		}
		c.emit(world.Event{Kind: kind, Position: p.Position.geom()})

	case TypeDeath:
		c.emit(world.Event{Kind: world.EventDeath})

	case TypeRespawned:
		c.emit(world.Event{Kind: world.EventRespawn})

	case TypeEntitySpawn, TypeEntityGone, TypeEntityMoved:
		var p entityEnvelope
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		ent := world.Entity{
			ID:       p.Entity.ID,
			Kind:     p.Entity.Type,
			Username: p.Entity.Username,
			Position: p.Entity.Position.geom(),
		}
		c.trackEntity(env.Type, ent)
		switch env.Type {
		case TypeEntitySpawn:
			c.emit(world.Event{Kind: world.EventEntityAppear, Entity: ent})
		case TypeEntityGone:
			c.emit(world.Event{Kind: world.EventEntityDisappear, Entity: ent})
		}

	case TypePlayerJoined, TypePlayerLeft:
		var p playerPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		c.mu.Lock()
		if env.Type == TypePlayerJoined {
			if _, ok := c.players[p.Username]; !ok {
				c.players[p.Username] = &world.Player{Username: p.Username}
			}
		} else {
			delete(c.players, p.Username)
		}
		c.mu.Unlock()

	case TypeChatMessage:
		var p chatMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		c.emit(world.Event{Kind: world.EventChat, Author: p.Username, Text: p.Message})

	case TypeError:
		var p errorPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		c.emit(world.Event{Kind: world.EventError, Err: errors.New(p.Message)})

	default:
		return fmt.Errorf("unknown envelope type %q", env.Type)
	}
	return nil
}

// trackEntity keeps the known-avatar map in step with player entity envelopes.
func (c *Client) trackEntity(typ string, ent world.Entity) {
	if !ent.IsPlayer() || ent.Username == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.players[ent.Username]
	if !ok {
		p = &world.Player{Username: ent.Username}
		c.players[ent.Username] = p
	}
	if typ == TypeEntityGone {
		p.EntityID = 0
		p.HasPosition = false
		return
	}
	p.EntityID = ent.ID
	p.Position = ent.Position
	p.HasPosition = true
}

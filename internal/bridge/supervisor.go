package bridge

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skybridge/internal/chat"
	"github.com/cory-johannsen/skybridge/internal/world"
)

func (b *Bridge) worldOptions() world.Options {
	opts := world.Options{
		Host:     b.cfg.World.Host,
		Port:     b.cfg.World.Port,
		Username: b.cfg.World.Username,
		Auth:     b.cfg.World.Auth,
		Timeout:  b.cfg.World.DialTimeout,

		ForceGroundContactOff: true,
	}
	if !b.cfg.World.AutoVersion() {
		opts.Version = b.cfg.World.Version
	}
	return opts
}

// connectWorld starts a dial if the world session is down.
//
// Postcondition: state is Connecting and exactly one dial is in flight, or
// nothing changed because a session already exists.
func (b *Bridge) connectWorld(ctx context.Context) {
	if b.state != StateDisconnected {
		return
	}
	b.attempt++
	attempt := b.attempt
	opts := b.worldOptions()
	b.setState(StateConnecting, zap.String("addr", opts.Addr()), zap.Uint64("attempt", attempt))

	b.spawn(func() {
		sess, err := b.dialer.Dial(ctx, opts)
		b.post(task{
			gen:     unscoped,
			run:     func(context.Context) { b.onWorldDialed(attempt, sess, err) },
			discard: closer(sess),
		})
	})
}

// closer returns a func closing c, or nil when c is nil.
func closer(c io.Closer) func() {
	if c == nil {
		return nil
	}
	return func() { _ = c.Close() }
}

func (b *Bridge) onWorldDialed(attempt uint64, sess world.Session, err error) {
	if attempt != b.attempt || b.state != StateConnecting {
		if sess != nil {
			_ = sess.Close()
		}
		return
	}
	if err != nil {
		b.logger.Warn("world connect failed", zap.Error(err))
		b.setState(StateDisconnected)
		b.scheduleWorldRetry()
		return
	}
	// The gateway overrides its own position writes (ForceGroundContactOff);
	// this covers the ones the bridge writes.
	sess.Use(world.GroundContactOverride)
	b.session = sess
	b.worldEvents = sess.Events()
}

// scheduleWorldRetry arranges one reconnect after the fixed retry delay.
// Further calls before it fires are no-ops.
func (b *Bridge) scheduleWorldRetry() {
	if b.retryPending {
		return
	}
	b.retryPending = true
	delay := b.cfg.Supervisor.RetryDelay
	b.logger.Info("world reconnect scheduled", zap.Duration("delay", delay))
	b.scheduleUnscoped(delay, func(ctx context.Context) {
		b.retryPending = false
		b.connectWorld(ctx)
	})
}

// onWorldLost tears down the current session and epoch after a disconnect.
// cause may be nil.
//
// Postcondition: state is Disconnected, no epoch is active, the radar is
// empty, and one reconnect is scheduled.
func (b *Bridge) onWorldLost(cause error) {
	if b.session == nil && b.state == StateDisconnected {
		return
	}
	fields := []zap.Field{}
	if cause != nil {
		fields = append(fields, zap.NamedError("cause", cause))
	}
	b.setState(StateDisconnected, fields...)

	if b.session != nil {
		_ = b.session.Close()
	}
	b.session = nil
	b.worldEvents = nil
	if b.rt != nil {
		b.rt.radar.Reset()
		b.rt = nil
	}
	b.gen++
	b.observer.SetWorldServing(false)
	b.scheduleWorldRetry()
}

func (b *Bridge) handleWorldEvent(ctx context.Context, ev world.Event) {
	if !finitePositions(ev) {
		b.logger.Warn("dropping world event with non-finite position", zap.String("kind", string(ev.Kind)))
		return
	}
	switch ev.Kind {
	case world.EventLogin:
		b.onLogin()
	case world.EventSpawn:
		b.onSpawn(ctx, ev)
	case world.EventDeath:
		b.onDeath()
	case world.EventRespawn:
		b.onRespawn()
	case world.EventEntityAppear:
		b.radarAppear(ctx, ev.Entity)
	case world.EventEntityDisappear:
		b.radarDisappear(ctx, ev.Entity)
	case world.EventPosition:
		if b.rt == nil {
			return
		}
		b.rt.setSelf(ev.Position)
		b.radarSweep(ctx)
	case world.EventChat:
		b.relayFromWorld(ctx, ev.Author, ev.Text)
	case world.EventError:
		// Usually followed by a disconnect, which drives the retry.
		b.logger.Warn("world session error", zap.Error(ev.Err))
	case world.EventDisconnect:
		b.onWorldLost(ev.Err)
	}
}

// finitePositions reports whether the positions ev carries for its kind are
// usable for flight starts and radar distances.
func finitePositions(ev world.Event) bool {
	switch ev.Kind {
	case world.EventSpawn, world.EventPosition:
		return ev.Position.IsFinite()
	case world.EventEntityAppear:
		return ev.Entity.Position.IsFinite()
	}
	return true
}

// onLogin opens a new epoch. Radar membership and the death flag start empty.
func (b *Bridge) onLogin() {
	if b.session == nil {
		return
	}
	b.epochSeq++
	b.gen++
	b.rt = newRuntime(b.epochSeq, b.session, b.cfg.Radar.Radius, b.clock.Now())
	b.setState(StateConnected, zap.String("username", b.session.Username()))
	b.logger.Info("world logged in",
		zap.String("epoch", b.rt.Epoch.ID.String()),
		zap.Uint64("seq", b.rt.Epoch.Seq),
		zap.Float64("radar_radius", b.rt.radar.Radius()),
	)
	b.observer.SetWorldServing(true)
}

// onSpawn resets avatar controls and flies home. It runs on the first spawn
// of an epoch and on every later one (respawn, world change).
func (b *Bridge) onSpawn(ctx context.Context, ev world.Event) {
	rt := b.rt
	if rt == nil {
		return
	}
	rt.setSelf(ev.Position)
	b.logger.Info("spawned", zap.Stringer("position", ev.Position))

	for _, control := range []string{world.ControlJump, world.ControlSneak} {
		if err := rt.session.SetControlState(ctx, control, false); err != nil {
			b.logger.Debug("clearing control state", zap.String("control", control), zap.Error(err))
		}
	}
	if err := rt.session.SetMovements(ctx, world.Movements{CanDig: false, Allow1by1Towers: false}); err != nil {
		b.logger.Debug("applying movements", zap.Error(err))
	}
	b.flyTo(ctx, b.home, b.cfg.Flight.Duration, nil)
}

func (b *Bridge) onDeath() {
	rt := b.rt
	if rt == nil {
		return
	}
	rt.dead = true
	b.setState(StateAwaitingRespawn)
	b.schedule(b.cfg.Supervisor.RespawnDelay, func(ctx context.Context) {
		if err := rt.session.Respawn(ctx); err != nil {
			b.logger.Warn("requesting respawn", zap.Error(err))
		}
	})
}

func (b *Bridge) onRespawn() {
	rt := b.rt
	if rt == nil {
		return
	}
	b.schedule(b.cfg.Supervisor.SettleDelay, func(context.Context) {
		rt.dead = false
		if b.state == StateAwaitingRespawn {
			b.setState(StateConnected)
		}
	})
}

func (b *Bridge) connectChat(ctx context.Context) {
	b.chatAttempt++
	attempt := b.chatAttempt
	b.spawn(func() {
		sess, err := b.connector.Connect(ctx)
		b.post(task{
			gen:     unscoped,
			run:     func(context.Context) { b.onChatConnected(attempt, sess, err) },
			discard: closer(sess),
		})
	})
}

func (b *Bridge) onChatConnected(attempt uint64, sess chat.Session, err error) {
	if attempt != b.chatAttempt || b.chatSession != nil {
		if sess != nil {
			_ = sess.Close()
		}
		return
	}
	if err != nil {
		b.logger.Warn("chat login failed", zap.Error(err))
		b.scheduleChatRetry()
		return
	}
	b.chatSession = sess
	b.chatEvents = sess.Events()
	b.logger.Info("chat session open")
}

func (b *Bridge) scheduleChatRetry() {
	if b.chatRetryPending {
		return
	}
	b.chatRetryPending = true
	delay := b.cfg.Supervisor.RetryDelay
	b.logger.Info("chat login retry scheduled", zap.Duration("delay", delay))
	b.scheduleUnscoped(delay, func(ctx context.Context) {
		b.chatRetryPending = false
		b.connectChat(ctx)
	})
}

// onChatLost handles the chat session's event stream closing.
func (b *Bridge) onChatLost() {
	if b.chatSession == nil {
		return
	}
	_ = b.chatSession.Close()
	b.chatSession = nil
	b.chatEvents = nil
	b.observer.SetChatServing(false)
	b.logger.Warn("chat session lost")
	b.scheduleChatRetry()
}

func (b *Bridge) handleChatEvent(ctx context.Context, ev chat.Event) {
	switch ev.Kind {
	case chat.EventReady:
		b.logger.Info("chat ready", zap.String("user", ev.Self))
		b.observer.SetChatServing(true)
	case chat.EventDisconnected:
		b.logger.Warn("chat gateway disconnected")
		b.observer.SetChatServing(false)
	case chat.EventResumed:
		b.logger.Info("chat gateway resumed")
		b.observer.SetChatServing(true)
	case chat.EventMessage:
		b.handleChatMessage(ctx, ev.Message)
	}
}

// handleChatMessage routes an inbound message by channel. Bot authors are
// ignored everywhere, which also drops the bridge's own relay copies.
func (b *Bridge) handleChatMessage(ctx context.Context, msg chat.Message) {
	if msg.AuthorIsBot {
		return
	}
	switch msg.ChannelID {
	case b.cfg.Chat.Channels.Relay:
		b.relayFromChat(ctx, msg)
	case b.cfg.Chat.Channels.Commands:
		b.dispatch(ctx, msg)
	}
}

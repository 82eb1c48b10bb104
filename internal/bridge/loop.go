// Package bridge is the orchestrator between a world session and a chat
// session: connection supervision, presence radar, message relay, operator
// commands, and smooth flight.
//
// All bridge state is owned by the goroutine running Bridge.Run. Timers and
// blocking dials run elsewhere and only post tasks back to that goroutine.
package bridge

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skybridge/internal/chat"
	"github.com/cory-johannsen/skybridge/internal/command"
	"github.com/cory-johannsen/skybridge/internal/config"
	"github.com/cory-johannsen/skybridge/internal/geom"
	"github.com/cory-johannsen/skybridge/internal/world"
)

const taskBuffer = 1024

// ErrNotConnected is reported when an action needs a logged-in world session.
var ErrNotConnected = errors.New("not connected to the world")

// Timer is a pending Clock callback.
type Timer interface {
	// Stop prevents the callback from running if it has not started.
	Stop() bool
}

// Clock abstracts wall time and timers.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine after d.
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock is the Clock backed by package time.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Observer is told when either session becomes usable or is lost.
type Observer interface {
	SetWorldServing(up bool)
	SetChatServing(up bool)
}

// NopObserver discards all updates.
type NopObserver struct{}

func (NopObserver) SetWorldServing(bool) {}
func (NopObserver) SetChatServing(bool)  {}

// unscoped marks tasks that survive epoch changes.
const unscoped uint64 = 0

// task is a continuation run on the loop goroutine. Tasks stamped with a
// generation other than unscoped are dropped when the generation has moved on.
type task struct {
	gen     uint64
	timerID uint64
	run     func(ctx context.Context)
	// discard releases resources held by run if the loop stops first.
	discard func()
}

// Bridge connects one world session and one chat session.
type Bridge struct {
	cfg       config.Config
	home      geom.Vec3
	dialer    world.Dialer
	connector chat.Connector
	clock     Clock
	observer  Observer
	logger    *zap.Logger
	registry  *command.Registry

	// spawn runs blocking work off the loop goroutine.
	spawn func(func())

	tasks chan task
	done  chan struct{}

	// Everything below is owned by the loop goroutine.

	state       LifecycleState
	session     world.Session
	worldEvents <-chan world.Event
	// attempt identifies the in-flight world dial.
	attempt      uint64
	retryPending bool
	// gen changes on every login and every disconnect; scoped tasks from an
	// older generation are stale.
	gen      uint64
	epochSeq uint64
	rt       *Runtime

	chatSession      chat.Session
	chatEvents       <-chan chat.Event
	chatAttempt      uint64
	chatRetryPending bool

	timerSeq uint64
	timers   map[uint64]Timer
}

// New creates a Bridge from validated configuration.
//
// Precondition: cfg must have passed Validate; dialer, connector, clock, observer
// and logger must be non-nil.
// Postcondition: Returns a Bridge ready to Run.
func New(cfg config.Config, dialer world.Dialer, connector chat.Connector, clock Clock, observer Observer, logger *zap.Logger) *Bridge {
	return &Bridge{
		cfg:       cfg,
		home:      geom.V(cfg.Flight.Home.X, cfg.Flight.Home.Y, cfg.Flight.Home.Z),
		dialer:    dialer,
		connector: connector,
		clock:     clock,
		observer:  observer,
		logger:    logger,
		registry:  command.DefaultRegistry(),
		spawn:     func(f func()) { go f() },
		tasks:     make(chan task, taskBuffer),
		done:      make(chan struct{}),
		state:     StateDisconnected,
		gen:       1,
		timers:    make(map[uint64]Timer),
	}
}

// Run connects both sessions and services their events until ctx is cancelled.
// Connection failures are retried indefinitely and never end Run.
//
// Postcondition: Both sessions are closed and no timer is pending when Run returns.
func (b *Bridge) Run(ctx context.Context) error {
	b.start(ctx)
	for {
		select {
		case <-ctx.Done():
			close(b.done)
			b.shutdown()
			return nil
		case ev, ok := <-b.worldEvents:
			if !ok {
				b.worldEvents = nil
				b.onWorldLost(nil)
				continue
			}
			b.handleWorldEvent(ctx, ev)
		case ev, ok := <-b.chatEvents:
			if !ok {
				b.chatEvents = nil
				b.onChatLost()
				continue
			}
			b.handleChatEvent(ctx, ev)
		case t := <-b.tasks:
			b.runTask(ctx, t)
		}
	}
}

func (b *Bridge) start(ctx context.Context) {
	b.logger.Info("bridge starting",
		zap.String("world", b.cfg.World.Addr()),
		zap.String("gateway", b.cfg.World.GatewayURL),
		zap.Float64("radar_radius", b.cfg.Radar.Radius),
	)
	b.connectWorld(ctx)
	b.connectChat(ctx)
}

func (b *Bridge) shutdown() {
	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
	b.drainDiscarded()
	if b.session != nil {
		if err := b.session.Close(); err != nil {
			b.logger.Debug("closing world session", zap.Error(err))
		}
		b.session = nil
	}
	if b.chatSession != nil {
		if err := b.chatSession.Close(); err != nil {
			b.logger.Debug("closing chat session", zap.Error(err))
		}
		b.chatSession = nil
	}
	b.rt = nil
	b.observer.SetWorldServing(false)
	b.observer.SetChatServing(false)
	b.logger.Info("bridge stopped")
}

// drainDiscarded empties the task queue without running anything.
func (b *Bridge) drainDiscarded() {
	for {
		select {
		case t := <-b.tasks:
			if t.discard != nil {
				t.discard()
			}
		default:
			return
		}
	}
}

// post hands t to the loop goroutine.
//
// Postcondition: Returns false, after discarding t, if Run is stopping or has returned.
func (b *Bridge) post(t task) bool {
	select {
	case <-b.done:
	default:
		select {
		case b.tasks <- t:
			return true
		case <-b.done:
		}
	}
	if t.discard != nil {
		t.discard()
	}
	return false
}

func (b *Bridge) runTask(ctx context.Context, t task) {
	if t.timerID != 0 {
		delete(b.timers, t.timerID)
	}
	if t.gen != unscoped && t.gen != b.gen {
		return
	}
	t.run(ctx)
}

// schedule runs fn on the loop after d, unless the generation changes first.
func (b *Bridge) schedule(d time.Duration, fn func(ctx context.Context)) {
	b.scheduleGen(d, b.gen, fn)
}

// scheduleUnscoped runs fn on the loop after d regardless of epoch changes.
func (b *Bridge) scheduleUnscoped(d time.Duration, fn func(ctx context.Context)) {
	b.scheduleGen(d, unscoped, fn)
}

func (b *Bridge) scheduleGen(d time.Duration, gen uint64, fn func(ctx context.Context)) {
	b.timerSeq++
	t := task{gen: gen, timerID: b.timerSeq, run: fn}
	b.timers[t.timerID] = b.clock.AfterFunc(d, func() {
		b.post(t)
	})
}

// State returns the world lifecycle state. Only safe on the loop goroutine
// or after Run has returned.
func (b *Bridge) State() LifecycleState {
	return b.state
}

func (b *Bridge) setState(to LifecycleState, fields ...zap.Field) {
	if b.state == to {
		return
	}
	fields = append(fields,
		zap.Stringer("from", b.state),
		zap.Stringer("to", to),
	)
	if b.rt != nil {
		fields = append(fields, zap.String("epoch", b.rt.Epoch.ID.String()))
	}
	b.logger.Info("world lifecycle transition", fields...)
	b.state = to
}

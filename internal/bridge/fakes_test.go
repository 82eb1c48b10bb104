package bridge

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skybridge/internal/chat"
	"github.com/cory-johannsen/skybridge/internal/config"
	"github.com/cory-johannsen/skybridge/internal/geom"
	"github.com/cory-johannsen/skybridge/internal/world"
)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	when  time.Time
	seq   int
	fn    func()
	done  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 14, 5, 9, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, when: c.now.Add(d), seq: c.seq, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// fireNext runs the earliest pending timer due at or before until.
func (c *fakeClock) fireNext(until time.Time) bool {
	c.mu.Lock()
	var next *fakeTimer
	live := c.timers[:0]
	for _, t := range c.timers {
		if t.done {
			continue
		}
		live = append(live, t)
		if t.when.After(until) {
			continue
		}
		if next == nil || t.when.Before(next.when) || (t.when.Equal(next.when) && t.seq < next.seq) {
			next = t
		}
	}
	c.timers = live
	if next == nil {
		c.mu.Unlock()
		return false
	}
	next.done = true
	c.now = next.when
	c.mu.Unlock()
	next.fn()
	return true
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

type packet struct {
	name    string
	payload world.Payload
}

type control struct {
	name string
	on   bool
}

// fakeWorld records every call the bridge makes on a world session.
type fakeWorld struct {
	username  string
	events    chan world.Event
	players   map[string]world.Player
	chats     []string
	controls  []control
	movements []world.Movements
	goals     []world.Goal
	respawns  int
	packets   []packet
	writes    int
	mws       []world.Middleware
	closed    bool
}

func newFakeWorld(username string) *fakeWorld {
	return &fakeWorld{
		username: username,
		events:   make(chan world.Event, 16),
		players:  make(map[string]world.Player),
	}
}

func (w *fakeWorld) Events() <-chan world.Event { return w.events }
func (w *fakeWorld) Username() string           { return w.username }

func (w *fakeWorld) Player(name string) (world.Player, bool) {
	p, ok := w.players[name]
	return p, ok
}

func (w *fakeWorld) Chat(_ context.Context, text string) error {
	w.chats = append(w.chats, text)
	return nil
}

func (w *fakeWorld) SetControlState(_ context.Context, name string, on bool) error {
	w.controls = append(w.controls, control{name: name, on: on})
	return nil
}

func (w *fakeWorld) SetMovements(_ context.Context, m world.Movements) error {
	w.movements = append(w.movements, m)
	return nil
}

func (w *fakeWorld) SetGoal(_ context.Context, g world.Goal) error {
	w.goals = append(w.goals, g)
	return nil
}

func (w *fakeWorld) Respawn(context.Context) error {
	w.respawns++
	return nil
}

func (w *fakeWorld) WritePacket(ctx context.Context, name string, payload world.Payload) error {
	w.writes++
	if w.closed {
		return world.ErrClosed
	}
	raw := world.PacketWriterFunc(func(_ context.Context, name string, payload world.Payload) error {
		w.packets = append(w.packets, packet{name: name, payload: payload})
		return nil
	})
	return world.Chain(raw, w.mws...).WritePacket(ctx, name, payload)
}

func (w *fakeWorld) Use(mw ...world.Middleware) { w.mws = append(w.mws, mw...) }

func (w *fakeWorld) Close() error {
	w.closed = true
	return nil
}

// positions returns the position of every recorded position packet.
func (w *fakeWorld) positions() []geom.Vec3 {
	var out []geom.Vec3
	for _, p := range w.packets {
		if p.name != PacketPosition {
			continue
		}
		out = append(out, geom.V(p.payload["x"].(float64), p.payload["y"].(float64), p.payload["z"].(float64)))
	}
	return out
}

// seePlayer makes name a visible player at pos.
func (w *fakeWorld) seePlayer(name string, id int64, pos geom.Vec3) world.Entity {
	w.players[name] = world.Player{Username: name, EntityID: id, Position: pos, HasPosition: true}
	return world.Entity{ID: id, Kind: world.EntityKindPlayer, Username: name, Position: pos}
}

type sentMessage struct {
	channelID string
	replyTo   string
	text      string
}

// fakeChat records sends and replies.
type fakeChat struct {
	events chan chat.Event
	sent   []sentMessage
	closed bool
}

func newFakeChat() *fakeChat {
	return &fakeChat{events: make(chan chat.Event, 16)}
}

func (c *fakeChat) Events() <-chan chat.Event { return c.events }

func (c *fakeChat) Send(_ context.Context, channelID, text string) error {
	c.sent = append(c.sent, sentMessage{channelID: channelID, text: text})
	return nil
}

func (c *fakeChat) Reply(_ context.Context, channelID, messageID, text string) error {
	c.sent = append(c.sent, sentMessage{channelID: channelID, replyTo: messageID, text: text})
	return nil
}

func (c *fakeChat) Close() error {
	c.closed = true
	return nil
}

// in returns the texts sent to channelID in order.
func (c *fakeChat) in(channelID string) []string {
	var out []string
	for _, m := range c.sent {
		if m.channelID == channelID {
			out = append(out, m.text)
		}
	}
	return out
}

type fakeObserver struct {
	world, chat bool
}

func (o *fakeObserver) SetWorldServing(up bool) { o.world = up }
func (o *fakeObserver) SetChatServing(up bool)  { o.chat = up }

const (
	relayChannel   = "relay"
	alertsChannel  = "alerts"
	commandChannel = "commands"
	selfName       = "skybot"
)

func testConfig() config.Config {
	return config.Config{
		World: config.WorldConfig{
			GatewayURL: "ws://127.0.0.1:3001/session",
			Host:       "mc.example.net",
			Port:       25565,
			Username:   selfName,
			Version:    "auto",
			Auth:       "offline",
		},
		Chat: config.ChatConfig{
			Token:         "token",
			CommandPrefix: "!",
			Channels:      config.ChannelsConfig{Relay: relayChannel, Alerts: alertsChannel, Commands: commandChannel},
		},
		Radar:      config.RadarConfig{Radius: 32},
		Flight:     config.FlightConfig{Duration: 1200 * time.Millisecond, Steps: 120, Home: config.Point{X: 0, Y: 100, Z: 0}},
		Supervisor: config.SupervisorConfig{RetryDelay: 5 * time.Second, RespawnDelay: 200 * time.Millisecond, SettleDelay: time.Second},
		Logging:    config.LoggingConfig{Level: "debug", Format: "console"},
	}
}

var errRefused = errors.New("connection refused")

// harness runs a Bridge synchronously: dials complete inline, timers fire
// only on advance, and queued tasks run on settle.
type harness struct {
	ctx      context.Context
	b        *Bridge
	clock    *fakeClock
	observer *fakeObserver
	chat     *fakeChat

	dials        int
	dialErr      error
	worlds       []*fakeWorld
	chatConnects int
	chatErr      error
}

// newHarness returns a started harness.
func newHarness(logger *zap.Logger, mutate ...func(*config.Config)) *harness {
	h := newIdleHarness(logger, mutate...)
	h.start()
	return h
}

// newIdleHarness returns a harness whose bridge has not started connecting.
func newIdleHarness(logger *zap.Logger, mutate ...func(*config.Config)) *harness {
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	h := &harness{
		ctx:      context.Background(),
		clock:    newFakeClock(),
		observer: &fakeObserver{},
		chat:     newFakeChat(),
	}
	dialer := world.DialerFunc(func(_ context.Context, opts world.Options) (world.Session, error) {
		h.dials++
		if h.dialErr != nil {
			return nil, h.dialErr
		}
		w := newFakeWorld(opts.Username)
		h.worlds = append(h.worlds, w)
		return w, nil
	})
	connector := chat.ConnectorFunc(func(context.Context) (chat.Session, error) {
		h.chatConnects++
		if h.chatErr != nil {
			return nil, h.chatErr
		}
		return h.chat, nil
	})
	h.b = New(cfg, dialer, connector, h.clock, h.observer, logger)
	h.b.spawn = func(f func()) { f() }
	return h
}

func (h *harness) start() {
	h.b.start(h.ctx)
	h.settle()
}

// settle runs every queued task.
func (h *harness) settle() {
	for {
		select {
		case t := <-h.b.tasks:
			h.b.runTask(h.ctx, t)
		default:
			return
		}
	}
}

// advance moves the clock forward by d, running timers and their tasks in order.
func (h *harness) advance(d time.Duration) {
	end := h.clock.Now().Add(d)
	for {
		h.settle()
		if !h.clock.fireNext(end) {
			break
		}
	}
	h.clock.set(end)
	h.settle()
}

// world returns the newest world session.
func (h *harness) world() *fakeWorld {
	return h.worlds[len(h.worlds)-1]
}

func (h *harness) worldEvent(ev world.Event) {
	h.b.handleWorldEvent(h.ctx, ev)
	h.settle()
}

// login delivers login and spawn at pos, then lets the homing flight finish.
func (h *harness) login(pos geom.Vec3) {
	h.worldEvent(world.Event{Kind: world.EventLogin})
	h.worldEvent(world.Event{Kind: world.EventSpawn, Position: pos})
	h.advance(h.b.cfg.Flight.Duration)
}

func (h *harness) say(channelID, author, text string) {
	h.b.handleChatEvent(h.ctx, chat.Event{Kind: chat.EventMessage, Message: chat.Message{
		ID:        "m-" + text,
		ChannelID: channelID,
		Author:    author,
		Text:      text,
	}})
	h.settle()
}

// replies returns command replies in order.
func (h *harness) replies() []string {
	var out []string
	for _, m := range h.chat.sent {
		if m.replyTo != "" {
			out = append(out, m.text)
		}
	}
	return out
}

func (h *harness) nearby() []string {
	if h.b.rt == nil {
		return nil
	}
	names := h.b.rt.radar.Names()
	sort.Strings(names)
	return names
}

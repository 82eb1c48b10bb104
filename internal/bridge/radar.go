package bridge

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skybridge/internal/world"
)

// PresenceEntry is an avatar currently announced as nearby.
type PresenceEntry struct {
	Name string
	// Distance is the distance at the last evaluation that kept it a member.
	Distance float64
}

// NoticeKind discriminates presence notices.
type NoticeKind int

const (
	NoticeEntered NoticeKind = iota
	// NoticeLeft is emitted when the avatar's entity disappeared.
	NoticeLeft
	// NoticeMovedAway is emitted when the avatar left the radius.
	NoticeMovedAway
)

// String returns the kind name used in logs.
func (k NoticeKind) String() string {
	switch k {
	case NoticeEntered:
		return "entered"
	case NoticeMovedAway:
		return "moved_away"
	default:
		return "left"
	}
}

// Notice is a presence change to announce in the alerts channel.
type Notice struct {
	Kind     NoticeKind
	Name     string
	Distance float64
}

// Text renders the notice for the alerts channel.
func (n Notice) Text() string {
	switch n.Kind {
	case NoticeEntered:
		return fmt.Sprintf("Player entered: %s (%.1f blocks)", n.Name, n.Distance)
	case NoticeMovedAway:
		return fmt.Sprintf("Player left: %s (moved away)", n.Name)
	default:
		return fmt.Sprintf("Player left: %s", n.Name)
	}
}

// Radar tracks which avatars are within a fixed radius of the controlled avatar.
// There is a single threshold: an avatar at exactly Radius is inside.
//
// Invariant: every member was within Radius at its last evaluation.
type Radar struct {
	radius  float64
	members map[string]PresenceEntry
}

// NewRadar creates an empty Radar.
//
// Precondition: radius > 0.
func NewRadar(radius float64) *Radar {
	return &Radar{radius: radius, members: make(map[string]PresenceEntry)}
}

// Radius returns the enter/leave threshold.
func (r *Radar) Radius() float64 {
	return r.radius
}

// Appear evaluates an avatar that came into entity range at distance dist.
//
// Postcondition: Returns an enter notice only if the avatar was not already a
// member and dist <= Radius.
func (r *Radar) Appear(name string, dist float64) (Notice, bool) {
	if _, ok := r.members[name]; ok || dist > r.radius {
		return Notice{}, false
	}
	r.members[name] = PresenceEntry{Name: name, Distance: dist}
	return Notice{Kind: NoticeEntered, Name: name, Distance: dist}, true
}

// Disappear removes an avatar whose entity is gone.
//
// Postcondition: Returns a leave notice only if the avatar was a member.
func (r *Radar) Disappear(name string) (Notice, bool) {
	if _, ok := r.members[name]; !ok {
		return Notice{}, false
	}
	delete(r.members, name)
	return Notice{Kind: NoticeLeft, Name: name}, true
}

// Sweep re-evaluates every member against distance, which returns the
// member's current distance or false when its position is unknown. Members
// with no known position are dropped without a notice.
//
// Postcondition: Returns one moved-away notice per member that left the
// radius, ordered by name.
func (r *Radar) Sweep(distance func(name string) (float64, bool)) []Notice {
	var notices []Notice
	for _, name := range r.Names() {
		dist, ok := distance(name)
		if !ok {
			delete(r.members, name)
			continue
		}
		if dist > r.radius {
			delete(r.members, name)
			notices = append(notices, Notice{Kind: NoticeMovedAway, Name: name, Distance: dist})
			continue
		}
		r.members[name] = PresenceEntry{Name: name, Distance: dist}
	}
	return notices
}

// Reset removes every member without notices.
func (r *Radar) Reset() {
	clear(r.members)
}

// Has reports whether name is a member.
func (r *Radar) Has(name string) bool {
	_, ok := r.members[name]
	return ok
}

// Len returns the member count.
func (r *Radar) Len() int {
	return len(r.members)
}

// Names returns the member names in sorted order.
func (r *Radar) Names() []string {
	names := make([]string, 0, len(r.members))
	for name := range r.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns a snapshot of the membership ordered by name.
func (r *Radar) Entries() []PresenceEntry {
	entries := make([]PresenceEntry, 0, len(r.members))
	for _, name := range r.Names() {
		entries = append(entries, r.members[name])
	}
	return entries
}

func (b *Bridge) announce(ctx context.Context, notices ...Notice) {
	for _, n := range notices {
		b.logger.Info("presence", zap.String("player", n.Name), zap.Stringer("kind", n.Kind))
		b.notify(ctx, b.cfg.Chat.Channels.Alerts, n.Text())
	}
}

func (b *Bridge) radarAppear(ctx context.Context, ent world.Entity) {
	rt := b.rt
	if rt == nil || !ent.IsPlayer() || ent.Username == "" || ent.Username == rt.session.Username() {
		return
	}
	self, _ := rt.Self()
	if n, ok := rt.radar.Appear(ent.Username, self.DistanceTo(ent.Position)); ok {
		b.announce(ctx, n)
	}
}

func (b *Bridge) radarDisappear(ctx context.Context, ent world.Entity) {
	rt := b.rt
	if rt == nil || !ent.IsPlayer() {
		return
	}
	if n, ok := rt.radar.Disappear(ent.Username); ok {
		b.announce(ctx, n)
	}
}

func (b *Bridge) radarSweep(ctx context.Context) {
	rt := b.rt
	self, _ := rt.Self()
	notices := rt.radar.Sweep(func(name string) (float64, bool) {
		p, ok := rt.session.Player(name)
		if !ok || !p.HasPosition {
			return 0, false
		}
		return self.DistanceTo(p.Position), true
	})
	b.announce(ctx, notices...)
}

package bridge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skybridge/internal/geom"
	"github.com/cory-johannsen/skybridge/internal/world"
)

// PacketPosition is the raw packet written for every flight step.
const PacketPosition = "position"

// MotionTask is one smooth flight of the controlled avatar.
type MotionTask struct {
	Start    geom.Vec3
	Target   geom.Vec3
	Duration time.Duration
	Steps    int
}

// Interval returns the delay between consecutive steps.
func (m MotionTask) Interval() time.Duration {
	return m.Duration / time.Duration(m.Steps)
}

// Path returns the Steps+1 eased positions of the flight.
func (m MotionTask) Path() []geom.Vec3 {
	return geom.Path(m.Start, m.Target, m.Steps)
}

// positionPayload is the raw position packet for p. Ground contact is reported
// false here as well as by the session middleware and the gateway override.
func positionPayload(p geom.Vec3) world.Payload {
	return world.Payload{
		"x":                 p.X,
		"y":                 p.Y,
		"z":                 p.Z,
		world.FieldOnGround: false,
	}
}

// flyTo starts a flight from the tracked position to target over d. Each step
// moves the tracked position, writes a position packet, sweeps the radar,
// then waits d/steps.
// done runs on the loop after the final wait.
//
// A newer flight supersedes this one: its remaining steps are skipped and done
// runs at the next scheduled step instead. Ending the epoch drops done.
//
// Precondition: called on the loop goroutine.
func (b *Bridge) flyTo(ctx context.Context, target geom.Vec3, d time.Duration, done func(ctx context.Context)) {
	rt := b.rt
	if rt == nil {
		return
	}
	start, _ := rt.Self()
	m := MotionTask{Start: start, Target: target, Duration: d, Steps: b.cfg.Flight.Steps}
	rt.flight++
	b.logger.Info("flight started",
		zap.Uint64("flight", rt.flight),
		zap.Stringer("from", m.Start),
		zap.Stringer("to", m.Target),
		zap.Duration("duration", d),
	)
	b.flightStep(ctx, rt, rt.flight, m.Path(), 0, m.Interval(), done)
}

func (b *Bridge) flightStep(ctx context.Context, rt *Runtime, id uint64, path []geom.Vec3, i int, interval time.Duration, done func(ctx context.Context)) {
	p := path[i]
	rt.setSelf(p)
	if err := rt.session.WritePacket(ctx, PacketPosition, positionPayload(p)); err != nil {
		b.logger.Debug("writing flight step", zap.Int("step", i), zap.Error(err))
	}
	b.radarSweep(ctx)

	b.schedule(interval, func(ctx context.Context) {
		if rt.flight == id && i+1 < len(path) {
			b.flightStep(ctx, rt, id, path, i+1, interval, done)
			return
		}
		if rt.flight != id {
			b.logger.Debug("flight superseded", zap.Uint64("flight", id), zap.Int("step", i))
		}
		if done != nil {
			done(ctx)
		}
	})
}

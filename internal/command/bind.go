package command

import (
	"math"
	"strconv"

	"github.com/cory-johannsen/skybridge/internal/geom"
)

// MsgBadCoords is the reply for coordinates that are not numbers inside the
// world's block range.
const MsgBadCoords = "bad coords"

// Block coordinates accepted by coordinate commands. Every value in range
// floors to a block index without overflow.
const (
	MinCoord = math.MinInt32
	MaxCoord = math.MaxInt32
)

// Outcome classifies a command Result.
type Outcome int

const (
	// OutcomeOK is a successful command with a confirmation reply.
	OutcomeOK Outcome = iota
	// OutcomeUsage means the argument count was wrong.
	OutcomeUsage
	// OutcomeInvalid means an argument failed validation.
	OutcomeInvalid
	// OutcomeRejected means the arguments were well formed but the world state refused them.
	OutcomeRejected
	// OutcomePending means the command is still running and will reply on completion.
	OutcomePending
)

// Result is the typed outcome of parsing, binding, or executing a command.
type Result struct {
	Outcome Outcome
	// Reply is the text sent back to the operator; empty for OutcomePending.
	Reply string
}

// OK returns a successful Result.
func OK(reply string) Result { return Result{Outcome: OutcomeOK, Reply: reply} }

// Invalid returns an argument validation failure.
func Invalid(reply string) Result { return Result{Outcome: OutcomeInvalid, Reply: reply} }

// Rejected returns a world-state failure.
func Rejected(reply string) Result { return Result{Outcome: OutcomeRejected, Reply: reply} }

// Pending returns the Result of a command that replies later.
func Pending() Result { return Result{Outcome: OutcomePending} }

// IsError reports whether r is a usage, validation, or world-state failure.
func (r Result) IsError() bool {
	return r.Outcome == OutcomeUsage || r.Outcome == OutcomeInvalid || r.Outcome == OutcomeRejected
}

// Args holds validated command arguments.
type Args struct {
	// Coords is set for ArgsCoords commands.
	Coords geom.Vec3
	// Name is set for ArgsName commands.
	Name string
}

// UsageWith returns the usage hint rendered with the given command prefix.
func (c *Command) UsageWith(prefix string) string {
	return prefix + c.Usage
}

// Bind validates args against the command's argument kind.
//
// Postcondition: Returns (args, zero Result, true) on success, or
// (zero Args, failure Result, false) with a usage or validation reply.
func (c *Command) Bind(prefix string, args []string) (Args, Result, bool) {
	switch c.Args {
	case ArgsCoords:
		if len(args) != 3 {
			return Args{}, Result{Outcome: OutcomeUsage, Reply: c.UsageWith(prefix)}, false
		}
		var xyz [3]float64
		for i, a := range args {
			v, ok := ParseCoord(a)
			if !ok {
				return Args{}, Invalid(MsgBadCoords), false
			}
			xyz[i] = v
		}
		return Args{Coords: geom.V(xyz[0], xyz[1], xyz[2])}, Result{}, true

	case ArgsName:
		if len(args) == 0 || args[0] == "" {
			return Args{}, Result{Outcome: OutcomeUsage, Reply: c.UsageWith(prefix)}, false
		}
		return Args{Name: args[0]}, Result{}, true

	default:
		return Args{}, Result{}, true
	}
}

// ParseCoord parses a single coordinate. NaN, infinities and values outside
// [MinCoord, MaxCoord] are rejected.
func ParseCoord(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !(v >= MinCoord && v <= MaxCoord) {
		return 0, false
	}
	return v, true
}

// FormatCoord renders a coordinate in its shortest exact decimal form.
func FormatCoord(v float64) string {
	if v == 0 {
		v = 0 // normalise -0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatCoords renders v as "x y z".
func FormatCoords(v geom.Vec3) string {
	return FormatCoord(v.X) + " " + FormatCoord(v.Y) + " " + FormatCoord(v.Z)
}

// Package command provides the operator command table, parser, and argument binding.
package command

// Handler identifiers mapping commands to bridge dispatch functions.
const (
	HandlerPathTo = "pathto"
	HandlerFollow = "follow"
	HandlerFlyTo  = "flyto"
	HandlerStop   = "stop"
)

// ArgKind describes the positional arguments a command accepts.
type ArgKind int

const (
	// ArgsNone accepts and ignores any arguments.
	ArgsNone ArgKind = iota
	// ArgsCoords requires exactly three numeric coordinates.
	ArgsCoords
	// ArgsName requires a first argument naming an avatar; extra arguments are ignored.
	ArgsName
)

// Command defines an operator-invocable command.
type Command struct {
	// Name is the canonical command name, lowercase.
	Name string
	// Usage is the argument synopsis without the command prefix.
	Usage string
	// Args selects arity and per-argument validation.
	Args ArgKind
	// Handler maps to the bridge dispatch function.
	Handler string
}

// BuiltinCommands returns all operator commands.
func BuiltinCommands() []Command {
	return []Command{
		{Name: "pathto", Usage: "pathto x y z", Args: ArgsCoords, Handler: HandlerPathTo},
		{Name: "follow", Usage: "follow username", Args: ArgsName, Handler: HandlerFollow},
		{Name: "flyto", Usage: "flyto x y z", Args: ArgsCoords, Handler: HandlerFlyTo},
		{Name: "stop", Usage: "stop", Args: ArgsNone, Handler: HandlerStop},
	}
}

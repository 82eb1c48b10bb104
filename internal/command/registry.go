package command

import (
	"fmt"
	"sort"
)

// Registry maps command names to Command definitions.
type Registry struct {
	commands map[string]*Command
}

// NewRegistry creates a Registry populated with the given commands.
//
// Precondition: No two commands may share a name.
// Postcondition: Returns a Registry or an error on name collisions.
func NewRegistry(cmds []Command) (*Registry, error) {
	r := &Registry{commands: make(map[string]*Command, len(cmds))}
	for i := range cmds {
		cmd := &cmds[i]
		if cmd.Name == "" {
			return nil, fmt.Errorf("command %d has an empty name", i)
		}
		if _, exists := r.commands[cmd.Name]; exists {
			return nil, fmt.Errorf("duplicate command name: %q", cmd.Name)
		}
		r.commands[cmd.Name] = cmd
	}
	return r, nil
}

// DefaultRegistry creates a Registry with all built-in commands.
//
// Postcondition: Returns a Registry with all built-in commands registered.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(BuiltinCommands())
	if err != nil {
		panic(fmt.Sprintf("building default registry: %v", err))
	}
	return r
}

// Resolve looks up a command by its lowercase name.
//
// Postcondition: Returns (command, true) if found, or (nil, false).
func (r *Registry) Resolve(name string) (*Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Commands returns all registered commands sorted by name.
func (r *Registry) Commands() []*Command {
	result := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		result = append(result, cmd)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

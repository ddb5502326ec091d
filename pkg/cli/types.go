package cli

import (
	"context"
)

// Exit codes returned by handlers.
const (
	ExitOK      = 0
	ExitError   = 1
	ExitUsage   = 2
	ExitNothing = 3
	ExitFailed  = 4
)

type Flag struct {
	Name    string
	Short   string
	Type    string // "bool", "string"
	Desc    string
	Default string
	Value   any // Populated during parsing
}

type Arg struct {
	Name     string
	Type     string
	Desc     string
	Optional bool
	Value    string // Populated during parsing
}

type Command struct {
	Name     string
	Desc     string
	Args     []*Arg
	Flags    []*Flag
	Examples []string
}

type Topic struct {
	Name string
	Desc string
	Text string
}

type Invocation struct {
	Command *Command
	Args    map[string]string
	Flags   map[string]any
	Global  map[string]any
}

// String returns the value of a string flag, looking at command flags
// before global ones.
func (inv *Invocation) String(name string) string {
	if v, ok := inv.Flags[name].(string); ok {
		return v
	}
	if v, ok := inv.Global[name].(string); ok {
		return v
	}
	return ""
}

// Bool reports whether a bool flag was given.
func (inv *Invocation) Bool(name string) bool {
	if v, ok := inv.Flags[name].(bool); ok {
		return v
	}
	v, _ := inv.Global[name].(bool)
	return v
}

type ExecutionResult struct {
	ExitCode int
}

type Handler interface {
	Execute(ctx context.Context, inv *Invocation) (*ExecutionResult, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, inv *Invocation) (*ExecutionResult, error)

func (f HandlerFunc) Execute(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	return f(ctx, inv)
}

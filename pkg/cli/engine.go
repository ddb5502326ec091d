package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Mutable
type Engine struct {
	Name        string
	Desc        string
	GlobalFlags []*Flag
	Commands    []*Command
	Topics      []*Topic
	Handlers    map[string]Handler
	Theme       *Theme
	Out         io.Writer
	// Default runs when the arguments start with a flag or are empty.
	Default string
}

func NewEngine(name, desc string) *Engine {
	return &Engine{
		Name:     name,
		Desc:     desc,
		Handlers: make(map[string]Handler),
		Theme:    DefaultTheme(),
		Out:      os.Stdout,
	}
}

// AddCommand declares a command.
func (e *Engine) AddCommand(c *Command) {
	e.Commands = append(e.Commands, c)
}

func (e *Engine) Register(cmdPath string, h Handler) {
	e.Handlers[cmdPath] = h
}

type ParseResult struct {
	Invocation *Invocation
	Help       bool
	HelpArgs   []string
	Error      error
}

// Run parses args and executes the matching handler. Usage errors come
// back with ExitUsage.
func (e *Engine) Run(ctx context.Context, args []string) (*ExecutionResult, error) {
	res := e.Parse(args)
	if res.Error != nil {
		return &ExecutionResult{ExitCode: ExitUsage}, res.Error
	}
	if res.Help {
		e.PrintHelp(res.HelpArgs...)
		return &ExecutionResult{ExitCode: ExitOK}, nil
	}
	return e.Execute(ctx, res.Invocation)
}

func (e *Engine) Parse(args []string) *ParseResult {
	res := &ParseResult{
		Invocation: &Invocation{
			Args:   make(map[string]string),
			Flags:  make(map[string]any),
			Global: make(map[string]any),
		},
	}
	var remaining []string
	// Parse global flags and help
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--help" || arg == "-h" {
			res.Help = true
			continue
		}
		gf, value, hasValue := matchFlag(e.GlobalFlags, arg)
		if gf == nil {
			remaining = append(remaining, arg)
			continue
		}
		if gf.Type == "bool" {
			res.Invocation.Global[gf.Name] = true
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				res.Error = fmt.Errorf("flag --%s requires a value", gf.Name)
				return res
			}
			i++
			value = args[i]
		}
		res.Invocation.Global[gf.Name] = value
	}

	if res.Help {
		res.HelpArgs = remaining
		return res
	}

	if res.Invocation.Global["version"] == true && len(remaining) == 0 {
		remaining = []string{"version"}
	}

	if len(remaining) > 0 && remaining[0] == "help" {
		res.Help = true
		res.HelpArgs = remaining[1:]
		return res
	}

	if len(remaining) == 0 || strings.HasPrefix(remaining[0], "-") {
		if e.Default == "" {
			if len(remaining) == 0 {
				res.Help = true
				return res
			}
			res.Error = fmt.Errorf("unknown flag: %s", remaining[0])
			return res
		}
		remaining = append([]string{e.Default}, remaining...)
	}

	inv, err := e.resolve(res.Invocation, remaining)
	if err != nil {
		res.Error = err
		return res
	}
	res.Invocation = inv
	return res
}

func (e *Engine) Execute(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	path := inv.Command.Name
	if h, ok := e.Handlers[path]; ok {
		return h.Execute(ctx, inv)
	}
	return &ExecutionResult{ExitCode: ExitError}, fmt.Errorf("no handler registered for command: %s", path)
}

func (e *Engine) findCommand(word string) (*Command, error) {
	var matches []*Command
	for _, c := range e.Commands {
		if c.Name == word {
			return c, nil
		}
		if strings.HasPrefix(c.Name, word) {
			matches = append(matches, c)
		}
	}
	if len(matches) > 1 {
		var names []string
		for _, m := range matches {
			names = append(names, m.Name)
		}
		return nil, fmt.Errorf("ambiguous command: %s (candidates: %s)", word, strings.Join(names, ", "))
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("unknown command: %s", word)
	}
	return matches[0], nil
}

func (e *Engine) resolve(inv *Invocation, args []string) (*Invocation, error) {
	cmd, err := e.findCommand(args[0])
	if err != nil {
		return nil, err
	}
	inv.Command = cmd
	if err := e.parseParams(inv, cmd, args[1:]); err != nil {
		return nil, err
	}
	return inv, nil
}

// matchFlag finds the flag named by arg, accepting "--name", "-s" and
// "--name=value".
func matchFlag(flags []*Flag, arg string) (*Flag, string, bool) {
	name, value, hasValue := arg, "", false
	if strings.HasPrefix(arg, "--") {
		if eq := strings.IndexByte(arg, '='); eq > 0 {
			name, value, hasValue = arg[:eq], arg[eq+1:], true
		}
	}
	for _, f := range flags {
		if name == "--"+f.Name || (f.Short != "" && name == "-"+f.Short) {
			return f, value, hasValue
		}
	}
	return nil, "", false
}

func (e *Engine) parseParams(inv *Invocation, cmd *Command, args []string) error {
	argIdx := 0
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "-") && arg != "-" {
			f, value, hasValue := matchFlag(cmd.Flags, arg)
			if f == nil {
				f, value, hasValue = matchFlag(e.GlobalFlags, arg)
				if f == nil {
					return fmt.Errorf("unknown flag for %s: %s", cmd.Name, arg)
				}
				// Global flags are accepted after the command as well.
				if f.Type == "bool" {
					inv.Global[f.Name] = true
					continue
				}
				if !hasValue {
					if i+1 >= len(args) {
						return fmt.Errorf("flag --%s requires a value", f.Name)
					}
					i++
					value = args[i]
				}
				inv.Global[f.Name] = value
				continue
			}
			if f.Type == "bool" {
				if hasValue {
					return fmt.Errorf("flag --%s does not take a value", f.Name)
				}
				inv.Flags[f.Name] = true
				continue
			}
			if !hasValue {
				if i+1 >= len(args) {
					return fmt.Errorf("flag --%s requires a value", f.Name)
				}
				i++
				value = args[i]
			}
			inv.Flags[f.Name] = value
			continue
		}
		if argIdx >= len(cmd.Args) {
			return fmt.Errorf("unexpected argument for %s: %s", cmd.Name, arg)
		}
		inv.Args[cmd.Args[argIdx].Name] = arg
		argIdx++
	}

	// Check for missing required arguments
	for ; argIdx < len(cmd.Args); argIdx++ {
		if !cmd.Args[argIdx].Optional {
			return fmt.Errorf("argument %s is missing", cmd.Args[argIdx].Name)
		}
	}
	return nil
}

func (e *Engine) PrintHelp(args ...string) {
	t := e.Theme
	w := e.Out
	if len(args) > 0 {
		subject := args[0]
		// Try topic
		for _, topic := range e.Topics {
			if topic.Name == subject || strings.HasPrefix(topic.Name, subject) {
				e.PrintTopicHelp(topic)
				return
			}
		}
		if c, err := e.findCommand(subject); err == nil {
			e.PrintCommandHelp(c)
			return
		}
	}
	fmt.Fprintf(w, "%s\n", t.Styled(t.Cyan.Bold(true), e.Name+" - "+e.Desc))
	fmt.Fprintf(w, "\n%s\n", t.Styled(t.Bold, "Usage:"))
	fmt.Fprintf(w, "  %s %s\n", e.Name, t.Styled(t.Yellow, "[flags] [command] [command flags]"))
	fmt.Fprintf(w, "\n%s\n", t.Styled(t.Bold, "Global Flags:"))
	fmt.Fprintf(w, "  %-12s %s\n", t.Styled(t.Cyan, "--help, -h"), t.Styled(t.Dim, "Show help [command | topic]"))
	for _, f := range e.GlobalFlags {
		fmt.Fprintf(w, "  %-12s %s\n", t.Styled(t.Cyan, flagLabel(f)), t.Styled(t.Dim, f.Desc))
	}

	fmt.Fprintf(w, "\n%s %s\n", t.Bullet, t.Styled(t.Bold, "Commands"))
	for i, c := range e.Commands {
		name := c.Name
		if name == e.Default {
			name += " (default)"
		}
		prefix := t.BoxTree
		if i == len(e.Commands)-1 {
			prefix = t.BoxLast
		}
		fmt.Fprintf(w, "%s %s %s %s\n", prefix, t.Styled(t.Cyan, name), e.getPadding(name, 24), t.Styled(t.Dim, c.Desc))
	}

	if len(e.Topics) > 0 {
		fmt.Fprintf(w, "\n%s %s\n", t.IconHelp, t.Styled(t.Bold, "Topics:"))
		for _, topic := range e.Topics {
			name := t.Styled(t.Cyan, topic.Name)
			padding := e.getPadding(topic.Name, 20)
			fmt.Fprintf(w, "  %s %s %s\n", name, padding, t.Styled(t.Dim, topic.Desc))
		}
	}
	fmt.Fprintf(w, "\nType '%s' for more details.\n", t.Styled(t.Yellow, e.Name+" help <command>"))
}

func (e *Engine) getPadding(name string, target int) string {
	t := e.Theme
	dots := target - len(name)
	if dots < 2 {
		dots = 2
	}
	return t.Styled(t.Dim, strings.Repeat(".", dots))
}

func flagLabel(f *Flag) string {
	label := "--" + f.Name
	if f.Short != "" {
		label += ", -" + f.Short
	}
	return label
}

func (e *Engine) PrintCommandHelp(c *Command) {
	t := e.Theme
	w := e.Out
	fmt.Fprintf(w, "\n%s %s\n", t.Styled(t.Bold, "Command:"), t.Styled(t.Cyan, e.Name+" "+c.Name))
	fmt.Fprintf(w, "%s %s\n", t.Styled(t.Bold, "Description:"), t.Styled(t.Dim, c.Desc))
	fmt.Fprintln(w)
	if len(c.Args) > 0 {
		fmt.Fprintf(w, "%s\n", t.Styled(t.Bold, "Arguments:"))
		for _, a := range c.Args {
			name := "<" + a.Name + ">"
			if a.Optional {
				name = "[" + a.Name + "]"
			}
			fmt.Fprintf(w, "  %-15s %s\n", t.Styled(t.Yellow, name), t.Styled(t.Dim, a.Desc))
		}
		fmt.Fprintln(w)
	}
	if len(c.Flags) > 0 {
		fmt.Fprintf(w, "%s\n", t.Styled(t.Bold, "Flags:"))
		for _, f := range c.Flags {
			desc := f.Desc
			if f.Default != "" {
				desc += " (default: " + f.Default + ")"
			}
			fmt.Fprintf(w, "  %-24s %s\n", t.Styled(t.Cyan, flagLabel(f)), t.Styled(t.Dim, desc))
		}
		fmt.Fprintln(w)
	}
	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "%s\n", t.Styled(t.Bold, "Examples:"))
		for _, ex := range c.Examples {
			fmt.Fprintf(w, "  %s %s\n", t.Styled(t.Green, "$"), ex)
		}
		fmt.Fprintln(w)
	}
}

func (e *Engine) PrintTopicHelp(topic *Topic) {
	t := e.Theme
	w := e.Out
	fmt.Fprintf(w, "\n%s %s\n", t.Styled(t.Bold, "Topic:"), t.Styled(t.Cyan, topic.Name))
	fmt.Fprintf(w, "%s %s\n", t.Styled(t.Bold, "Description:"), t.Styled(t.Dim, topic.Desc))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s\n\n", topic.Text)
}

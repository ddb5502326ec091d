package recipe

import (
	"fmt"
	"slices"
	"strings"

	"go.starlark.net/starlark"
)

// ParamDef describes one keyword argument of a builtin.
type ParamDef struct {
	Name     string
	Type     string
	Desc     string
	Optional bool
}

// CommandDef is the schema of a builtin exposed to recipes.
type CommandDef struct {
	Name   string
	Desc   string
	Params []ParamDef
}

// StrictAction implements a builtin once its arguments have been checked.
type StrictAction func(thread *starlark.Thread, kwargs map[string]starlark.Value) (starlark.Value, error)

// NewStrictBuiltin creates a builtin that only accepts the keyword
// arguments named in def. Errors carry a usage summary.
func NewStrictBuiltin(def CommandDef, action StrictAction) *starlark.Builtin {
	return starlark.NewBuiltin(def.Name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) > 0 {
			return nil, fmt.Errorf("%s: takes keyword-only arguments\n%s", def.Name, usage(def))
		}

		kwMap := make(map[string]starlark.Value, len(kwargs))
		for _, pair := range kwargs {
			kwMap[string(pair[0].(starlark.String))] = pair[1]
		}

		if err := validateArgs(def, kwMap); err != nil {
			return nil, fmt.Errorf("%s: %w\n%s", def.Name, err, usage(def))
		}
		return action(thread, kwMap)
	})
}

func validateArgs(def CommandDef, kwMap map[string]starlark.Value) error {
	var missing []string
	for _, p := range def.Params {
		if _, ok := kwMap[p.Name]; !ok && !p.Optional {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing mandatory arguments: %v", missing)
	}

	for k := range kwMap {
		known := slices.ContainsFunc(def.Params, func(p ParamDef) bool { return p.Name == k })
		if !known {
			return fmt.Errorf("unknown argument '%s'", k)
		}
	}
	return nil
}

func usage(def CommandDef) string {
	var sb strings.Builder
	sb.WriteString("\nDescription:\n  " + def.Desc + "\n")
	sb.WriteString("\nUsage:\n  " + def.Name + "(\n")
	for _, p := range def.Params {
		typ := p.Type
		if p.Optional {
			typ += ", optional"
		}
		fmt.Fprintf(&sb, "    %-15s # (%s) %s\n", p.Name+"=", typ, p.Desc)
	}
	sb.WriteString("  )\n")
	return sb.String()
}

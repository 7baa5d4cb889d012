package tool

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ShellAction is the verdict a ShellPolicy gives a command.
type ShellAction string

const (
	ShellAllow ShellAction = "allow"
	ShellDeny  ShellAction = "deny"
)

// DefaultShellPolicy denies commands that power off the machine, format
// disks or escalate privileges. Config entries override it.
var DefaultShellPolicy = ShellPolicy{
	"shutdown": ShellDeny,
	"reboot":   ShellDeny,
	"halt":     ShellDeny,
	"poweroff": ShellDeny,
	"mkfs":     ShellDeny,
	"dd":       ShellDeny,
	"sudo":     ShellDeny,
	"su":       ShellDeny,
	"rm -rf *": ShellDeny,
}

// ShellPolicy maps command patterns to actions. Patterns are "name",
// "name *", "name sub *" or "*". Commands matching nothing are allowed.
type ShellPolicy map[string]ShellAction

// shellCommand is one simple command found in a script.
type shellCommand struct {
	Name       string
	Args       []string
	Subcommand string // first non-flag argument
}

// MergeShellPolicy layers config entries over DefaultShellPolicy. Unknown
// actions are rejected.
func MergeShellPolicy(overrides map[string]string) (ShellPolicy, error) {
	out := make(ShellPolicy, len(DefaultShellPolicy)+len(overrides))
	for k, v := range DefaultShellPolicy {
		out[k] = v
	}
	for k, v := range overrides {
		switch a := ShellAction(v); a {
		case ShellAllow, ShellDeny:
			out[k] = a
		default:
			return nil, fmt.Errorf("shell policy %q: unknown action %q", k, v)
		}
	}
	return out, nil
}

// Check returns an error naming the first command in prog the policy denies.
func (p ShellPolicy) Check(prog *syntax.File) error {
	for _, cmd := range parseShellCommands(prog) {
		if p.match(cmd) == ShellDeny {
			return fmt.Errorf("command not allowed: %s", cmd.String())
		}
	}
	return nil
}

// match tries the most specific pattern first.
func (p ShellPolicy) match(cmd shellCommand) ShellAction {
	if cmd.Subcommand != "" {
		if a, ok := p[cmd.Name+" "+cmd.Subcommand+" *"]; ok {
			return a
		}
		if flags := cmd.flags(); flags != "" {
			if a, ok := p[cmd.Name+" "+flags+" *"]; ok {
				return a
			}
		}
	}
	if a, ok := p[cmd.Name+" *"]; ok {
		return a
	}
	if a, ok := p[cmd.Name]; ok {
		return a
	}
	// mkfs.ext4 and friends
	if base, _, found := strings.Cut(cmd.Name, "."); found {
		if a, ok := p[base]; ok {
			return a
		}
	}
	if a, ok := p["*"]; ok {
		return a
	}
	return ShellAllow
}

// flags joins the leading flag arguments, so "rm -rf /" yields "-rf".
func (c shellCommand) flags() string {
	var out []string
	for _, a := range c.Args {
		if !strings.HasPrefix(a, "-") {
			break
		}
		out = append(out, a)
	}
	return strings.Join(out, " ")
}

func (c shellCommand) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// parseShellCommands walks every call in prog, including those nested in
// pipelines, subshells and command substitutions.
func parseShellCommands(prog *syntax.File) []shellCommand {
	var cmds []shellCommand
	syntax.Walk(prog, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		name := wordString(call.Args[0])
		if name == "" {
			return true
		}
		cmd := shellCommand{Name: name}
		for _, w := range call.Args[1:] {
			arg := wordString(w)
			cmd.Args = append(cmd.Args, arg)
			if cmd.Subcommand == "" && !strings.HasPrefix(arg, "-") {
				cmd.Subcommand = arg
			}
		}
		cmds = append(cmds, cmd)
		return true
	})
	return cmds
}

func wordString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

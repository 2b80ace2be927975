package tarnctlcli

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/pflag"
)

// Command is one tarnctl subcommand: a flag set plus the function that
// runs once those flags are parsed.
type Command struct {
	Flags *pflag.FlagSet
	Usage string
	Short string
	Exec  func(ctx context.Context, o *IO, args []string) error
}

// Name is the command's invocation token, the first word of Usage.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine renders the one-line summary shown in top-level help.
func (c *Command) HelpLine() string {
	return "  " + c.Usage + "\n\t" + c.Short
}

// Run parses args against the command's flags and, on success, invokes
// Exec. It returns the process exit code; the caller is responsible for
// calling o.Finish() once it knows no more output is coming.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		o.ErrPrintln(c.Usage + ": " + err.Error())
		return 2
	}

	if err := c.Exec(ctx, o, c.Flags.Args()); err != nil {
		o.ErrPrintln(c.Name() + ": " + err.Error())
		return 1
	}
	return 0
}

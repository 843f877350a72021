// Package inspectcmd implements the jitinspect developer tool: it loads
// code objects from their assembler textual form and runs them through the
// analysis and compile pipeline, printing what the JIT would do. It is a
// development aid for working on the compiler against fixture files — the
// JIT's real external interface is the pair of host callbacks in the driver
// package, which has no CLI at all.
package inspectcmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/mna/mainer"
)

const binName = "jitinspect"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> <path>...
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> <path>...
       %[1]s -h|--help
       %[1]s -v|--version

Inspection tool for the %[1]s bytecode JIT pipeline.

The <command> can be one of:
       analyze                   Run the abstract interpreter over each
                                 assembled code object and print the
                                 per-offset abstract stack and locals.
       compile                   Compile each assembled code object and
                                 report compiled / not compilable.
       disasm                    Assemble then disassemble each file,
                                 printing the normalized form.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       -d --debug                Print per-compile driver diagnostics to
                                 stderr (env: JITINSPECT_DEBUG).
       --run                     With <compile>: execute the compiled
                                 top-level and print its result.
`, binName)
)

type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`
	Debug   bool `flag:"d,debug" env:"JITINSPECT_DEBUG"`
	Run     bool `flag:"run" env:"JITINSPECT_RUN"`

	args  []string
	flags map[string]bool
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string) {
	c.args = args
}

func (c *Cmd) SetFlags(flags map[string]bool) {
	c.flags = flags
}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}

	if len(c.args) == 0 {
		return errors.New("no command specified")
	}

	cmdName := c.args[0]
	c.cmdFn = commandFuncs(c)[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", c.args[0])
	}
	if len(c.args[1:]) == 0 {
		return fmt.Errorf("%s: at least one file must be provided", cmdName)
	}
	if c.flags["run"] && cmdName != "compile" {
		return fmt.Errorf("%s: invalid flag 'run'", cmdName)
	}
	return nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	// environment overrides first, explicit flags on top.
	if err := env.Parse(c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid environment: %s\n", err)
		return mainer.InvalidArgs
	}

	p := mainer.Parser{}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success

	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args[1:]); err != nil {
		// each command takes care of printing its errors, just return with
		// an error code
		return mainer.Failure
	}
	return mainer.Success
}

// cmdFunc is the signature a *Cmd method must have to be a subcommand.
type cmdFunc = func(context.Context, mainer.Stdio, []string) error

// commandFuncs collects every method of c whose bound value asserts to
// cmdFunc, keyed by its lowercased method name — adding a subcommand is
// just adding a method with that signature. Methods with any other shape
// (Main, Validate, the flag setters) simply fail the assertion.
func commandFuncs(c *Cmd) map[string]cmdFunc {
	cv := reflect.ValueOf(c)
	ct := cv.Type()
	cmds := make(map[string]cmdFunc, ct.NumMethod())
	for i := 0; i < ct.NumMethod(); i++ {
		if fn, ok := cv.Method(i).Interface().(cmdFunc); ok {
			cmds[strings.ToLower(ct.Method(i).Name)] = fn
		}
	}
	return cmds
}

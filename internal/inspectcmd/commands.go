package inspectcmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mna/mainer"
	"github.com/tachyon-lang/tachyonjit/absint"
	"github.com/tachyon-lang/tachyonjit/asmfmt"
	"github.com/tachyon-lang/tachyonjit/bytecode"
	"github.com/tachyon-lang/tachyonjit/driver"
	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/ilbuilder"
	"github.com/tachyon-lang/tachyonjit/ilbuilder/refbuilder"
)

func loadFiles(files []string) ([]*bytecode.CodeObject, error) {
	out := make([]*bytecode.CodeObject, 0, len(files))
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		code, err := asmfmt.Asm(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		out = append(out, code)
	}
	return out, nil
}

func printError(stdio mainer.Stdio, err error) error {
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
	}
	return err
}

func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	codes, err := loadFiles(args)
	if err != nil {
		return printError(stdio, err)
	}
	for _, code := range codes {
		b, err := asmfmt.Dasm(code)
		if err != nil {
			return printError(stdio, err)
		}
		stdio.Stdout.Write(b)
	}
	return nil
}

func (c *Cmd) Analyze(ctx context.Context, stdio mainer.Stdio, args []string) error {
	codes, err := loadFiles(args)
	if err != nil {
		return printError(stdio, err)
	}
	for _, code := range codes {
		res := absint.Run(code)
		fmt.Fprintf(stdio.Stdout, "function %s:\n", code.Name)
		for _, in := range bytecode.Decode(code.Code) {
			fmt.Fprintf(stdio.Stdout, "%6d  %-24s stack=%v locals=%v\n",
				in.Offset, in.Op, res.GetStackInfo(in.Offset), res.GetLocalInfo(in.Offset))
		}
	}
	return nil
}

func (c *Cmd) Compile(ctx context.Context, stdio mainer.Stdio, args []string) error {
	codes, err := loadFiles(args)
	if err != nil {
		return printError(stdio, err)
	}

	d := driver.New(func() ilbuilder.Builder { return refbuilder.New() })
	if c.Debug {
		d.Debugf = func(format string, args ...any) {
			fmt.Fprintf(stdio.Stderr, format+"\n", args...)
		}
	}

	var firstErr error
	for i, code := range codes {
		_, err := d.Compile(code)
		switch {
		case errors.Is(err, driver.ErrNotCompilable):
			fmt.Fprintf(stdio.Stdout, "%s: not compilable (%s)\n", args[i], err)
			continue
		case err != nil:
			printError(stdio, fmt.Errorf("%s: %w", args[i], err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		fmt.Fprintf(stdio.Stdout, "%s: compiled\n", args[i])

		if c.Run {
			ts := hostabi.NewThreadState()
			v, err := d.Execute(ts, code, hostabi.NewDict(8))
			if err != nil {
				printError(stdio, fmt.Errorf("%s: %w", args[i], err))
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			fmt.Fprintf(stdio.Stdout, "%s: result %s\n", args[i], v)
		}
	}
	return firstErr
}

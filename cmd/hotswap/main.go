// Command hotswap watches a unit under development and reinstalls it into the
// host every time it changes.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
)

// Options is the root command. The struct tags are interpreted by go-flags.
type Options struct {
	Config  string `short:"f" long:"config" default:"hotswap.yaml" description:"preferences YAML path"`
	NoColor bool   `long:"no-color" description:"disable colored console output"`
	Quiet   bool   `short:"q" long:"quiet" description:"only log, no console messages"`

	Watch     WatchCmd     `command:"watch" description:"Watch the configured unit and hotswap it on every change"`
	Reload    ReloadCmd    `command:"reload" description:"Hotswap the configured unit once"`
	Bundle    BundleCmd    `command:"bundle" description:"Package files and folders into <name>.zip"`
	Normalize NormalizeCmd `command:"normalize" description:"Print the normalized form of a unit name"`

	out io.Writer
}

func (o *Options) console() io.Writer {
	if o.Quiet {
		return nil
	}
	return o.out
}

func newOptions(out io.Writer) *Options {
	opts := &Options{out: out}
	opts.Watch.g = opts
	opts.Reload.g = opts
	opts.Bundle.g = opts
	opts.Normalize.g = opts
	return opts
}

// run parses args and executes the selected command.
func run(args []string, out io.Writer) error {
	parser := flags.NewParser(newOptions(out), flags.HelpFlag|flags.PassDoubleDash)
	_, err := parser.ParseArgs(args)
	return err
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, ferr.Message)
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

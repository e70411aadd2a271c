package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"hotswap-go/bundle"
	"hotswap-go/internal/container"
	"hotswap-go/reload"
)

// WatchCmd runs until SIGINT/SIGTERM.
type WatchCmd struct {
	Path      string        `short:"p" long:"path" description:"file or folder to watch; saved to preferences"`
	PollDelay time.Duration `long:"poll-delay" description:"delay between polls, e.g. 150ms; saved to preferences"`

	g *Options
}

func (c *WatchCmd) Execute([]string) error {
	ctn, err := container.New(c.g.Config, container.Options{Console: c.g.console(), NoColor: c.g.NoColor})
	if err != nil {
		return err
	}
	if c.Path != "" {
		abs, err := filepath.Abs(c.Path)
		if err != nil {
			return err
		}
		if err := ctn.Store().SetMonitorPath(abs); err != nil {
			return err
		}
	}
	if c.PollDelay != 0 {
		if err := ctn.Store().SetPollDelay(c.PollDelay); err != nil {
			return err
		}
	}
	if err := ctn.Build(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctn.Start(ctx); err != nil {
		return err
	}
	// NOTIFY_SOCKET 未设置时为空操作
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	signal.Stop(quit)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()
	return ctn.Stop()
}

// ReloadCmd hotswaps once. Invalid manifests and host failures are reported
// but still exit non-zero.
type ReloadCmd struct {
	g *Options
}

func (c *ReloadCmd) Execute([]string) error {
	ctn, err := container.New(c.g.Config, container.Options{
		Console:          c.g.console(),
		NoColor:          c.g.NoColor,
		DisableHotReload: true,
	})
	if err != nil {
		return err
	}
	if err := ctn.Build(); err != nil {
		return err
	}
	reloadErr := ctn.ReloadOnce(context.Background())
	if err := ctn.Stop(); err != nil && reloadErr == nil {
		return err
	}
	return reloadErr
}

type BundleCmd struct {
	Name      string   `short:"n" long:"name" required:"true" description:"archive name without extension"`
	Out       string   `short:"o" long:"out" default:"." description:"existing output folder"`
	Overwrite bool     `long:"overwrite" description:"replace an existing archive"`
	Exclude   []string `short:"x" long:"exclude" description:"base-name pattern to leave out (repeatable); defaults to cache artifacts"`

	Args struct {
		Sources []string `positional-arg-name:"source" description:"files and folders to include"`
	} `positional-args:"yes"`

	g *Options
}

func (c *BundleCmd) Execute([]string) error {
	path, err := bundle.Bundle(c.Args.Sources, c.Out, c.Name, bundle.Options{
		Overwrite: c.Overwrite,
		Excludes:  c.Exclude,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(c.g.out, path)
	return nil
}

type NormalizeCmd struct {
	Args struct {
		Name []string `positional-arg-name:"name" required:"1"`
	} `positional-args:"yes" required:"yes"`

	g *Options
}

func (c *NormalizeCmd) Execute([]string) error {
	normalized := reload.Normalize(strings.Join(c.Args.Name, " "))
	if normalized == "" {
		return errors.New("name is blank")
	}
	fmt.Fprintln(c.g.out, normalized)
	return nil
}

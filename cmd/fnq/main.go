// SPDX-License-Identifier: MIT

// Command fnq is a file-lock-based task queue: it runs a command in the
// background, serialized against every previously queued command in the
// same directory, and offers a handful of read-only ways to inspect that
// queue while it drains.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mdaverde/fnq-go/internal/cli"
	"github.com/mdaverde/fnq-go/internal/config"
	"github.com/mdaverde/fnq-go/internal/logging"
	"github.com/mdaverde/fnq-go/internal/menu"
	"github.com/mdaverde/fnq-go/internal/observe"
	"github.com/mdaverde/fnq-go/internal/queue"
	"github.com/mdaverde/fnq-go/internal/queuefile"
)

// version is overridable at link time: -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Before anything else: are we actually a re-exec'd supervisor or
	// worker stage of someone else's Queue() call, rather than a top-level
	// user invocation? This check is gated on an internal environment
	// variable set only by the parent stage (see internal/queue), so an
	// ordinary command line can never trigger it by accident.
	if stage := queue.Stage(); stage != "" {
		os.Exit(queue.Dispatch(stage, os.Args[1:]))
	}
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	cmd := cli.Parse(argv)
	if cmd.Tag == cli.TagError {
		cli.PrintUsage()
		return 1
	}
	if cmd.Tag == cli.TagHelp {
		cli.PrintUsage()
		return 0
	}
	if cmd.Tag == cli.TagVersion {
		fmt.Println("fnq", version)
		return 0
	}

	cfgPath := os.Getenv("FNQ_CONFIG")
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}
	cfg, err := config.Load(config.WithYAMLFile(cfgPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, "fnq: load config:", err)
		return 1
	}

	dir := cli.QueueDir(os.Getenv("FNQ_DIR"), cfg.Queue.Dir)
	if err := queuefile.EnsureDir(dir); err != nil {
		fmt.Fprintln(os.Stderr, "fnq:", err)
		return 1
	}

	logger := logging.FromEnv(cmd.Quiet)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch cmd.Tag {
	case cli.TagTap:
		running, err := observe.Tap(dir, cmd.File)
		if err != nil {
			return reportErr(err)
		}
		if running {
			return 1
		}
		return 0

	case cli.TagBlock:
		if err := observe.Block(dir, cmd.File); err != nil {
			return reportErr(err)
		}
		return 0

	case cli.TagWatch:
		if err := observe.Watch(ctx, dir, os.Stdout, cfg.Watch.PollInterval, logger); err != nil {
			return reportErr(err)
		}
		return 0

	case cli.TagLast:
		if err := observe.Last(dir, os.Stdout); err != nil {
			return reportErr(err)
		}
		return 0

	case cli.TagMenu:
		picker := menu.New(dir, menu.WithPollInterval(cfg.Watch.PollInterval))
		if err := picker.Run(ctx); err != nil {
			return reportErr(err)
		}
		return 0

	case cli.TagQueue:
		quiet := cmd.Quiet || cfg.Queue.Quiet
		clean := cmd.Clean || cfg.Queue.Clean
		req := queue.Request{Dir: dir, Cmd: cmd.Cmd, Args: cmd.Args, Quiet: quiet, Clean: clean, Logger: logger}
		if err := queue.Enqueue(req); err != nil {
			return reportErr(err)
		}
		return 0

	default:
		cli.PrintUsage()
		return 1
	}
}

func reportErr(err error) int {
	fmt.Fprintln(os.Stderr, "fnq:", err)
	return 1
}

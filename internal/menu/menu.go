// SPDX-License-Identifier: MIT

// Package menu provides an interactive terminal picker over the queue
// directory, built on charmbracelet/huh, so a user can browse current
// queue entries and choose one to tap, block on, or dump without typing
// its filename. The watch action follows every still-running queue file in
// the directory, not only the selected one.
package menu

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/mdaverde/fnq-go/internal/observe"
	"github.com/mdaverde/fnq-go/internal/queuefile"
)

// Action is one of the observer operations a user can run against the
// entry they picked.
type Action string

const (
	ActionTap   Action = "tap"
	ActionBlock Action = "block"
	ActionWatch Action = "watch"
	ActionDump  Action = "dump"
)

// Picker is the interactive menu over a queue directory.
type Picker struct {
	dir          string
	output       io.Writer
	accessible   bool
	pollInterval time.Duration
}

// Option configures a Picker.
type Option func(*Picker)

// WithOutput sets the writer observer actions print to (for testing).
func WithOutput(w io.Writer) Option {
	return func(p *Picker) { p.output = w }
}

// WithAccessible enables huh's accessible (plain prompt) mode, used for
// screen readers and for running under a non-interactive terminal.
func WithAccessible(accessible bool) Option {
	return func(p *Picker) { p.accessible = accessible }
}

// WithPollInterval overrides the debounce interval passed to Watch.
func WithPollInterval(d time.Duration) Option {
	return func(p *Picker) { p.pollInterval = d }
}

// New builds a Picker over dir.
func New(dir string, opts ...Option) *Picker {
	p := &Picker{dir: dir, output: os.Stdout, pollInterval: observe.DefaultPollInterval}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run lists the queue entries in dir, lets the user pick one and an
// action, and executes that action.
func (p *Picker) Run(ctx context.Context) error {
	entries, err := queuefile.Files(p.dir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(p.output, "queue is empty")
		return nil
	}

	options := make([]huh.Option[string], 0, len(entries))
	for _, e := range entries {
		running, err := observe.Tap(p.dir, e.Name())
		if err != nil {
			return err
		}
		status := "idle"
		if running {
			status = "running"
		}
		options = append(options, huh.NewOption(fmt.Sprintf("%s (%s)", e.Name(), status), e.Name()))
	}

	var selected string
	var action string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Queue entries").
				Options(options...).
				Value(&selected),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Action").
				Options(
					huh.NewOption("tap (is it still running?)", string(ActionTap)),
					huh.NewOption("block (wait for it to finish)", string(ActionBlock)),
					huh.NewOption("watch (follow live output)", string(ActionWatch)),
					huh.NewOption("dump (print its contents now)", string(ActionDump)),
				).
				Value(&action),
		),
	).WithAccessible(p.accessible)

	if err := form.Run(); err != nil {
		return err
	}

	return p.runAction(ctx, Action(action), selected)
}

func (p *Picker) runAction(ctx context.Context, action Action, file string) error {
	switch action {
	case ActionTap:
		running, err := observe.Tap(p.dir, file)
		if err != nil {
			return err
		}
		fmt.Fprintf(p.output, "%s: running=%v\n", file, running)
		return nil
	case ActionBlock:
		return observe.Block(p.dir, file)
	case ActionWatch:
		return observe.Watch(ctx, p.dir, p.output, p.pollInterval, nil)
	case ActionDump:
		entry, err := queuefile.Find(p.dir, file)
		if err != nil {
			return err
		}
		f, err := os.Open(entry.Path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(p.output, f)
		return err
	default:
		return fmt.Errorf("menu: unknown action %q", action)
	}
}

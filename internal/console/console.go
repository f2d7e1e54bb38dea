// Package console is the interactive operator menu.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/me/amaos/pkg/model"
)

// Kernel is the subset of kernel.Kernel the menu drives.
type Kernel interface {
	Launch(ctx context.Context, name string, kind model.Kind) (model.Task, error)
	Terminate(ctx context.Context, pid int) (model.Task, error)
	ShutdownAll(ctx context.Context) []model.Task
	Configure(ctx context.Context, ram, storage, cores int) error
	Tasks() []model.Task
	Resources() model.Resources
}

// Mode decides which menu entries are allowed.
type Mode int

const (
	ModeUser Mode = iota
	ModeKernel
)

func (m Mode) String() string {
	if m == ModeKernel {
		return "Kernel"
	}
	return "User"
}

// Options tunes the console.
type Options struct {
	// BootDelay is the pause between boot screen lines.
	BootDelay time.Duration
	// AskResources prompts for RAM, storage and cores before the menu.
	AskResources bool
}

// Console reads menu choices from in and writes to out.
type Console struct {
	kernel Kernel
	in     *bufio.Scanner
	lines  chan string
	out    io.Writer
	opts   Options
	mode   Mode
	logger *slog.Logger
}

// New creates a console over k.
func New(k Kernel, in io.Reader, out io.Writer, opts Options, logger *slog.Logger) *Console {
	return &Console{
		kernel: k,
		in:     bufio.NewScanner(in),
		out:    out,
		opts:   opts,
		logger: logger.With("component", "console"),
	}
}

// Mode returns the current menu mode.
func (c *Console) Mode() Mode {
	return c.mode
}

// Run shows the boot screen and serves the menu until Exit, end of input or
// ctx cancellation. Every admitted task is shut down before Run returns.
func (c *Console) Run(ctx context.Context) error {
	defer c.shutdown(context.WithoutCancel(ctx))

	if err := c.boot(ctx); err != nil {
		return err
	}
	readCtx, stopReader := context.WithCancel(ctx)
	defer stopReader()
	c.startReader(readCtx)

	if c.opts.AskResources {
		if err := c.askResources(ctx); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.showMenu()
		line, ok := c.readLine(ctx)
		if !ok {
			return ctx.Err()
		}
		choice, err := strconv.Atoi(line)
		if err != nil {
			c.printf("Invalid choice %q.\n", line)
			continue
		}
		switch choice {
		case 1:
			c.launch(ctx, model.KindProcess)
		case 2:
			c.launch(ctx, model.KindThread)
		case 3:
			c.showTasks()
		case 4:
			c.showResources()
		case 5:
			c.terminate(ctx)
		case 6:
			c.mode = 1 - c.mode
		case 7:
			return nil
		default:
			c.printf("Invalid choice %d.\n", choice)
		}
	}
}

func (c *Console) boot(ctx context.Context) error {
	c.printf("\nAMA OS Booting...\n")
	if err := c.pause(ctx); err != nil {
		return err
	}
	c.printf("Modules...\n")
	if err := c.pause(ctx); err != nil {
		return err
	}
	c.printf("Ready.\n\n")
	return nil
}

func (c *Console) pause(ctx context.Context) error {
	if c.opts.BootDelay <= 0 {
		return nil
	}
	t := time.NewTimer(c.opts.BootDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Console) askResources(ctx context.Context) error {
	var vals [3]int
	for i, label := range []string{"RAM (MiB)", "Storage (MiB)", "Cores"} {
		for {
			c.printf("%s: ", label)
			line, ok := c.readLine(ctx)
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				return io.ErrUnexpectedEOF
			}
			n, err := strconv.Atoi(line)
			if err == nil && n >= 0 {
				vals[i] = n
				break
			}
			c.printf("Enter a non-negative number.\n")
		}
	}
	if err := c.kernel.Configure(ctx, vals[0], vals[1], vals[2]); err != nil {
		return fmt.Errorf("configure resources: %w", err)
	}
	return nil
}

func (c *Console) showMenu() {
	c.printf("\n--- MENU (%s) ---\n", c.mode)
	c.printf("1. Launch Task\n2. Spawn Thread\n3. Show Tasks\n4. Show Resources\n5. Terminate (Kernel)\n6. Switch Mode\n7. Exit\n> ")
}

func (c *Console) launch(ctx context.Context, kind model.Kind) {
	c.printf("Task name: ")
	name, ok := c.readLine(ctx)
	if !ok {
		return
	}
	task, err := c.kernel.Launch(ctx, name, kind)
	if err != nil {
		c.printf("%s\n", describe(err))
		return
	}
	c.printf("Started %s\n", task.Label())
}

func (c *Console) showTasks() {
	tasks := c.kernel.Tasks()
	if len(tasks) == 0 {
		c.printf("No tasks.\n")
		return
	}
	for _, t := range tasks {
		c.printf("%s\n", t.Label())
	}
}

func (c *Console) showResources() {
	r := c.kernel.Resources()
	c.printf("RAM:     %s free of %s\n", mib(r.AvailableRAM), mib(r.TotalRAM))
	c.printf("Storage: %s free of %s\n", mib(r.AvailableStorage), mib(r.TotalStorage))
	c.printf("Cores:   %d\n", r.Cores)
}

func (c *Console) terminate(ctx context.Context) {
	if c.mode != ModeKernel {
		c.printf("Terminate requires Kernel mode.\n")
		return
	}
	c.printf("PID to terminate: ")
	line, ok := c.readLine(ctx)
	if !ok {
		return
	}
	pid, err := strconv.Atoi(line)
	if err != nil {
		c.printf("Invalid PID %q.\n", line)
		return
	}
	task, err := c.kernel.Terminate(ctx, pid)
	if err != nil {
		c.printf("%s\n", describe(err))
		return
	}
	c.printf("Terminated %s\n", task.Label())
}

func (c *Console) shutdown(ctx context.Context) {
	released := c.kernel.ShutdownAll(ctx)
	c.logger.Info("console exit", "released", len(released))
}

// startReader feeds input lines to readLine so a blocked read never holds up
// cancellation.
func (c *Console) startReader(ctx context.Context) {
	c.lines = make(chan string)
	go func() {
		defer close(c.lines)
		for c.in.Scan() {
			select {
			case c.lines <- strings.TrimSpace(c.in.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (c *Console) readLine(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-c.lines:
		return line, ok
	}
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// describe turns a kernel error into the operator-facing message.
func describe(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidName):
		return "Invalid task name."
	case errors.Is(err, model.ErrInsufficientResources):
		return "Not enough RAM or HDD."
	case errors.Is(err, model.ErrQueueFull):
		return "Ready queue is full."
	case errors.Is(err, model.ErrLaunchFailed):
		return "Launch failed: " + err.Error()
	case errors.Is(err, model.ErrNotFound):
		return "No such process."
	}
	return "Error: " + err.Error()
}

func mib(n int) string {
	return humanize.IBytes(uint64(n) << 20)
}

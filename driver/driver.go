// Package driver locates, spawns and supervises the driver subprocess, and
// connects the protocol layer to it: over the process's own stdio for local
// sessions, or over WebSocket for a driver hosted by a bridge server.
package driver

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/microsoft/playwright-python-sub003/connection"
	"github.com/microsoft/playwright-python-sub003/internal/files"
	"github.com/microsoft/playwright-python-sub003/remote"
)

const (
	driverName = "playwright-cli"

	// How long Close waits for the driver to exit after its stdin is shut
	// before killing it.
	exitGracePeriod = 5 * time.Second
)

type config struct {
	log     *zap.SugaredLogger
	path    string
	env     []string
	stderr  io.Writer
	factory connection.ObjectFactory
}

type Option func(c *config)

func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.log = l.Named("driver").Sugar()
	}
}

// WithDriverPath overrides driver executable discovery.
func WithDriverPath(path string) Option {
	return func(c *config) {
		c.path = path
	}
}

// WithEnv appends environment variables to the driver process.
func WithEnv(env []string) Option {
	return func(c *config) {
		c.env = env
	}
}

// WithStderr redirects the driver's stderr; the default is this process's.
func WithStderr(w io.Writer) Option {
	return func(c *config) {
		c.stderr = w
	}
}

// WithObjectFactory overrides the proxy constructor registry. The default is
// the full typed registry from the remote package.
func WithObjectFactory(f connection.ObjectFactory) Option {
	return func(c *config) {
		c.factory = f
	}
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		log:     zap.NewNop().Sugar(),
		stderr:  os.Stderr,
		factory: remote.NewObjectFactory(),
	}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// Proc is a spawned driver subprocess with its stdio pipes. Stdout carries
// frames from the driver, Stdin carries frames to it.
type Proc struct {
	log    *zap.SugaredLogger
	cmd    *exec.Cmd
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	exited chan struct{}
}

// Spawn starts `<driver> run-driver` with piped stdio and begins reaping it
// in the background.
func Spawn(opts ...Option) (*Proc, error) {
	cfg := newConfig(opts...)
	path, err := findExecutable(cfg.path)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path, "run-driver")
	if len(cfg.env) > 0 {
		cmd.Env = append(os.Environ(), cfg.env...)
	}
	cmd.Stderr = cfg.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("opening driver stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening driver stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting driver %q: %w", path, err)
	}
	cfg.log.Debugw("started driver", "Path", path, "PID", cmd.Process.Pid)

	p := &Proc{
		log:    cfg.log,
		cmd:    cmd,
		Stdin:  stdin,
		Stdout: stdout,
		exited: make(chan struct{}),
	}
	go p.reap()
	return p, nil
}

func (p *Proc) reap() {
	err := p.cmd.Wait()
	close(p.exited)
	if err != nil {
		p.log.Debugw("driver process exited", "Error", err)
	}
}

// Close shuts the driver's stdin, which asks it to exit, then waits for the
// process, killing it after a grace period.
func (p *Proc) Close() error {
	p.Stdin.Close()
	select {
	case <-p.exited:
	case <-time.After(exitGracePeriod):
		p.log.Debugw("driver did not exit, killing", "PID", p.cmd.Process.Pid)
		p.cmd.Process.Kill()
		<-p.exited
	}
	return nil
}

// Driver is a locally spawned driver subprocess plus the connection speaking
// to it over stdio.
type Driver struct {
	proc *Proc
	conn *connection.Connection
}

// Run spawns the driver and returns once the connection is dispatching.
func Run(opts ...Option) (*Driver, error) {
	cfg := newConfig(opts...)
	proc, err := Spawn(opts...)
	if err != nil {
		return nil, err
	}

	transport := connection.NewPipeTransport(proc.Stdout, proc.Stdin,
		connection.WithPipeLogger(cfg.log.Desugar()))
	conn := connection.NewConnection(transport,
		connection.WithLogger(cfg.log.Desugar()),
		connection.WithObjectFactory(cfg.factory))
	conn.Start()

	return &Driver{proc: proc, conn: conn}, nil
}

func (d *Driver) Connection() *connection.Connection { return d.conn }

// Playwright returns the session's root object once the driver announces it.
func (d *Driver) Playwright(ctx context.Context) (*remote.Playwright, error) {
	obj, err := d.conn.WaitForObject(ctx, remote.RootObjectGuid)
	if err != nil {
		return nil, err
	}
	pw, ok := obj.(*remote.Playwright)
	if !ok {
		return nil, fmt.Errorf("root object has unexpected type %T", obj)
	}
	return pw, nil
}

// Close ends the session and reaps the driver process.
func (d *Driver) Close() error {
	d.conn.Close()
	return d.proc.Close()
}

// findExecutable resolves the driver binary: explicit option, then the
// PLAYWRIGHT_DRIVER_PATH environment variable, then an upward search from the
// working directory, then PATH.
func findExecutable(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if p := os.Getenv("PLAYWRIGHT_DRIVER_PATH"); p != "" {
		return p, nil
	}
	name := driverName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	if wd, err := os.Getwd(); err == nil {
		if p := files.FindUp(name, wd); p != "" {
			return p, nil
		}
	}
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("driver executable %q not found; set PLAYWRIGHT_DRIVER_PATH or use WithDriverPath", name)
}

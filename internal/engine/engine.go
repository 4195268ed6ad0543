// Package engine starts and owns the battle-simulator subprocess. The
// simulator is an opaque collaborator: it takes newline-terminated
// command lines on stdin and emits newline-terminated protocol event
// lines on stdout. This package only manages the duplex channel; it
// never interprets either stream.
package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// Options configures one engine launch.
type Options struct {
	// Path to the simulator binary.
	Path string
	// ExtraArgs are appended verbatim after the generated flags.
	ExtraArgs []string

	// Seed is the resolved PRNG seed ("" means engine default).
	Seed string

	// Behavior toggles, passed through opaquely.
	Verbose   bool
	NoCatch   bool
	KeepAlive bool
	Replay    bool

	// UsePTY runs the engine under a pseudo-terminal. Some simulators
	// block-buffer stdout when it is not a tty, which would stall the
	// read pipeline for a whole buffer's worth of events.
	UsePTY bool
}

// BuildArgs produces the simulator's argument list from the toggles.
func BuildArgs(opts Options) []string {
	var args []string
	if opts.Seed != "" {
		args = append(args, "--seed="+opts.Seed)
	}
	if opts.Verbose {
		args = append(args, "--verbose")
	}
	if opts.NoCatch {
		args = append(args, "--no-catch")
	}
	if opts.KeepAlive {
		args = append(args, "--keep-alive")
	}
	if opts.Replay {
		args = append(args, "--replay")
	}
	return append(args, opts.ExtraArgs...)
}

// Engine is a running simulator process with its duplex channel. The
// write side and read side are logically independent directions of one
// handle; the two pipelines may use them concurrently.
type Engine struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	ptmx   *os.File

	closeOnce sync.Once
	waitOnce  sync.Once
	waitErr   error
}

// Start launches the simulator.
func Start(opts Options) (*Engine, error) {
	cmd := exec.Command(opts.Path, BuildArgs(opts)...)

	if opts.UsePTY {
		ptmx, err := pty.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("start engine with pty: %w", err)
		}
		return &Engine{
			cmd:    cmd,
			stdin:  ptmx,
			stdout: ptyReader{ptmx},
			ptmx:   ptmx,
		}, nil
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create engine stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create engine stdout pipe: %w", err)
	}
	// Engine diagnostics go straight to our stderr.
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}

	return &Engine{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// Stdin returns the engine's write side.
func (e *Engine) Stdin() io.Writer { return e.stdin }

// Stdout returns the engine's read side.
func (e *Engine) Stdout() io.Reader { return e.stdout }

// PID returns the engine's process id, or 0 before the process started.
func (e *Engine) PID() int {
	if e.cmd.Process == nil {
		return 0
	}
	return e.cmd.Process.Pid
}

// EndInput signals end-of-input to the engine. In pipe mode this closes
// the write side; a pty has no half-close, so an EOT byte is sent
// instead.
func (e *Engine) EndInput() error {
	if e.ptmx != nil {
		_, err := e.ptmx.Write([]byte{0x04})
		return err
	}
	return e.stdin.Close()
}

// Wait blocks until the engine exits. Safe to call more than once; the
// first result is cached.
func (e *Engine) Wait() error {
	e.waitOnce.Do(func() { e.waitErr = e.cmd.Wait() })
	return e.waitErr
}

// Close terminates the engine: SIGTERM first, then SIGKILL after a
// grace period if it does not exit.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.ptmx != nil {
			_ = e.ptmx.Close()
		} else {
			_ = e.stdin.Close()
		}

		if e.cmd.Process == nil {
			return
		}
		_ = e.cmd.Process.Signal(syscall.SIGTERM)

		done := make(chan struct{})
		go func() {
			_ = e.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			err = e.cmd.Process.Kill()
		}
	})
	return err
}

// ptyReader converts the EIO a pty master returns once the child exits
// into a plain EOF, so the read pipeline sees a normal end of stream.
type ptyReader struct {
	f *os.File
}

func (r ptyReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if err != nil && errors.Is(err, syscall.EIO) {
		return n, io.EOF
	}
	return n, err
}

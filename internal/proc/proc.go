// Package proc supervises the wrapped MCP server subprocess: spawn with
// piped stdio, asynchronous death detection, graceful stop.
package proc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/gaspardpetit/mcpd/internal/logx"
)

const (
	// maxLineSize bounds a single stdout line from the subprocess.
	maxLineSize = 1024 * 1024
	// maxStderrTail is how much recent stderr is kept for diagnostics.
	maxStderrTail = 64 * 1024
)

// ErrNotRunning is returned when writing to a process that already exited
// or was stopped.
var ErrNotRunning = errors.New("process not running")

// StartupError reports a subprocess that exited within the startup probe
// window, carrying its captured stderr.
type StartupError struct {
	ExitCode int
	Stderr   string
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("process exited immediately with code %d: %s", e.ExitCode, e.Stderr)
}

// Options configure one spawn.
type Options struct {
	Command      []string
	Dir          string
	Env          []string
	StartupProbe time.Duration
	StopGrace    time.Duration
}

// Process is one running subprocess with piped stdio. Stdout carries one
// JSON value per line; stderr is diagnostic text, drained in the background
// and never parsed as protocol data.
type Process struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    io.ReadCloser
	started   time.Time
	stopGrace time.Duration

	wmu sync.Mutex

	mu       sync.Mutex
	tail     []byte
	stopping bool
	exitCode int

	done       chan struct{}
	stderrDone chan struct{}
}

// Start spawns the subprocess and watches it for the probe window; a process
// that exits within the window fails with *StartupError carrying its stderr.
func Start(opts Options) (*Process, error) {
	if len(opts.Command) == 0 {
		return nil, errors.New("empty command")
	}
	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start process: %w", err)
	}

	p := &Process{
		cmd:        cmd,
		stdin:      stdin,
		stdout:     stdout,
		started:    time.Now(),
		stopGrace:  opts.StopGrace,
		exitCode:   -1,
		done:       make(chan struct{}),
		stderrDone: make(chan struct{}),
	}
	logx.Log.Info().Int("pid", cmd.Process.Pid).Strs("command", opts.Command).Msg("process started")

	go p.drainStderr(stderr)
	go p.reap()

	probe := opts.StartupProbe
	if probe <= 0 {
		probe = 100 * time.Millisecond
	}
	timer := time.NewTimer(probe)
	defer timer.Stop()
	select {
	case <-p.done:
		// Let the stderr drain catch up so the error carries diagnostics.
		select {
		case <-p.stderrDone:
		case <-time.After(200 * time.Millisecond):
		}
		return nil, &StartupError{ExitCode: p.ExitCode(), Stderr: p.StderrTail()}
	case <-timer.C:
	}
	return p, nil
}

// reap waits for the OS process and closes Done. It uses os.Process.Wait
// rather than exec.Cmd.Wait so the stdout pipe keeps its buffered data for
// the reader to drain after exit.
func (p *Process) reap() {
	state, err := p.cmd.Process.Wait()
	p.mu.Lock()
	if err == nil {
		p.exitCode = state.ExitCode()
	}
	p.mu.Unlock()
	logx.Log.Info().Int("pid", p.cmd.Process.Pid).Int("exit_code", p.ExitCode()).Msg("process exited")
	close(p.done)
}

func (p *Process) drainStderr(r io.Reader) {
	defer close(p.stderrDone)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Text()
		logx.Log.Debug().Str("stderr", line).Msg("process stderr")
		p.mu.Lock()
		p.tail = append(p.tail, line...)
		p.tail = append(p.tail, '\n')
		if len(p.tail) > maxStderrTail {
			p.tail = p.tail[len(p.tail)-maxStderrTail:]
		}
		p.mu.Unlock()
	}
}

// WriteLine serializes one complete line onto the subprocess stdin. Writes
// from concurrent callers never interleave.
func (p *Process) WriteLine(data []byte) error {
	if !p.Alive() {
		return ErrNotRunning
	}
	line := make([]byte, len(data)+1)
	copy(line, data)
	line[len(data)] = '\n'

	p.wmu.Lock()
	defer p.wmu.Unlock()
	if _, err := p.stdin.Write(line); err != nil {
		return fmt.Errorf("write to stdin: %w", err)
	}
	return nil
}

// Stdout exposes the read side of the subprocess stdout pipe. There must be
// exactly one consumer.
func (p *Process) Stdout() io.Reader { return p.stdout }

// Done closes when the subprocess has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Alive reports whether the subprocess is still running.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// PID returns the subprocess pid.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Uptime reports how long the subprocess has been running.
func (p *Process) Uptime() time.Duration { return time.Since(p.started) }

// ExitCode returns the recorded exit code, or -1 while running.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// StderrTail returns the most recent captured stderr output.
func (p *Process) StderrTail() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.tail)
}

// Stop requests graceful termination, waits up to the grace period, then
// kills. Safe to call multiple times; every call returns once the process
// has exited.
func (p *Process) Stop() {
	p.mu.Lock()
	already := p.stopping
	p.stopping = true
	p.mu.Unlock()
	if already {
		<-p.done
		return
	}

	p.wmu.Lock()
	_ = p.stdin.Close()
	p.wmu.Unlock()

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = p.cmd.Process.Kill()
	}
	grace := p.stopGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
		logx.Log.Warn().Int("pid", p.cmd.Process.Pid).Msg("process did not terminate gracefully, killing")
		_ = p.cmd.Process.Kill()
		<-p.done
	}
	_ = p.stdout.Close()
}

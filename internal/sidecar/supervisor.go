package sidecar

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is the lifecycle state of the supervised process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusRunning  Status = "running"
	StatusBackoff  Status = "backoff"
	StatusFailed   Status = "failed"
	StatusFinished Status = "finished"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultRestartDelay    = time.Second
	DefaultMaxRestartDelay = time.Minute
	DefaultStableThreshold = 30 * time.Second
	DefaultGracefulTimeout = 5 * time.Second
)

// ErrNoCommand is returned by Start when Config.Command is empty.
var ErrNoCommand = errors.New("sidecar: command is required")

// Config describes the process to supervise.
type Config struct {
	// Name identifies the process in logs.
	Name string

	// Command is the executable followed by its arguments.
	Command []string

	// Env is appended to the gateway's own environment.
	Env []string

	// Restart enables restarting after the process exits.
	Restart bool

	// MaxRestarts caps restarts; 0 means unlimited.
	MaxRestarts int

	// RestartDelay is the first backoff delay. It doubles per consecutive
	// short-lived run up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableThreshold is how long a run must last to reset the backoff.
	StableThreshold time.Duration

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration
}

// Logger defines the logging interface used by the Supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats is a snapshot of the supervisor's state.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Restarts  int           `json:"restarts"`
	LastError string        `json:"last_error,omitempty"`
}

// Supervisor runs one process and restarts it per Config.
//
// Thread Safety: all methods are safe for concurrent use.
type Supervisor struct {
	cfg    Config
	logger Logger

	mu        sync.RWMutex
	status    Status
	pid       int
	startedAt time.Time
	restarts  int
	lastErr   error
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

// New creates a stopped supervisor.
func New(cfg Config) *Supervisor {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = max(DefaultMaxRestartDelay, cfg.RestartDelay)
	}
	if cfg.StableThreshold <= 0 {
		cfg.StableThreshold = DefaultStableThreshold
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = DefaultGracefulTimeout
	}
	if cfg.Name == "" && len(cfg.Command) > 0 {
		cfg.Name = cfg.Command[0]
	}
	return &Supervisor{cfg: cfg, logger: noopLogger{}, status: StatusStopped}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// Start launches the process and supervises it in the background until
// Stop is called or ctx is cancelled.
//
// Returns:
//   - error: ErrNoCommand, an already-started supervisor, or the first launch failing
func (s *Supervisor) Start(ctx context.Context) error {
	if len(s.cfg.Command) == 0 {
		return ErrNoCommand
	}

	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("sidecar %s already started", s.cfg.Name)
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	run, err := s.spawn()
	if err != nil {
		s.mu.Lock()
		s.status = StatusFailed
		s.lastErr = err
		close(s.done)
		s.mu.Unlock()
		return err
	}

	go s.supervise(ctx, run)
	return nil
}

// run is one launched process.
type run struct {
	cmd     *exec.Cmd
	exited  chan error
	started time.Time
}

func (s *Supervisor) spawn() (*run, error) {
	cmd := exec.Command(s.cfg.Command[0], s.cfg.Command[1:]...) //nolint:gosec // command comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.cfg.Name, err)
	}

	r := &run{cmd: cmd, exited: make(chan error, 1), started: time.Now()}

	var pipes sync.WaitGroup
	pipes.Add(2)
	go s.capture(&pipes, "stdout", stdout)
	go s.capture(&pipes, "stderr", stderr)
	go func() {
		// Wait closes the pipes, so drain them first.
		pipes.Wait()
		r.exited <- cmd.Wait()
	}()

	s.mu.Lock()
	s.status = StatusRunning
	s.pid = cmd.Process.Pid
	s.startedAt = r.started
	s.mu.Unlock()

	s.logger.Info("sidecar started", "name", s.cfg.Name, "pid", cmd.Process.Pid)
	return r, nil
}

// capture logs the process output line by line.
func (s *Supervisor) capture(wg *sync.WaitGroup, stream string, r io.Reader) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Debug("sidecar output", "name", s.cfg.Name, "stream", stream, "line", scanner.Text())
	}
}

// supervise owns the process from its first launch until the supervisor
// stops for good.
func (s *Supervisor) supervise(ctx context.Context, current *run) {
	defer close(s.done)

	delay := s.cfg.RestartDelay
	var spawnErr error
	for {
		exitErr := spawnErr
		if current != nil {
			select {
			case exitErr = <-current.exited:
			case <-ctx.Done():
				s.terminate(current)
				s.finish(StatusStopped, nil)
				return
			case <-s.stop:
				s.terminate(current)
				s.finish(StatusStopped, nil)
				return
			}

			if time.Since(current.started) >= s.cfg.StableThreshold {
				delay = s.cfg.RestartDelay
			}
			if exitErr == nil {
				s.logger.Info("sidecar exited", "name", s.cfg.Name)
			} else {
				s.logger.Warn("sidecar exited unexpectedly", "name", s.cfg.Name, "error", exitErr)
			}
		}

		if !s.cfg.Restart {
			if exitErr == nil {
				s.finish(StatusFinished, nil)
			} else {
				s.finish(StatusFailed, exitErr)
			}
			return
		}

		s.mu.Lock()
		s.restarts++
		attempt := s.restarts
		s.lastErr = exitErr
		s.status = StatusBackoff
		s.pid = 0
		s.mu.Unlock()

		if s.cfg.MaxRestarts > 0 && attempt > s.cfg.MaxRestarts {
			s.mu.Lock()
			s.restarts = s.cfg.MaxRestarts
			s.mu.Unlock()
			s.logger.Error("sidecar restart limit reached", "name", s.cfg.Name, "restarts", s.cfg.MaxRestarts)
			s.finish(StatusFailed, exitErr)
			return
		}

		s.logger.Info("restarting sidecar", "name", s.cfg.Name, "attempt", attempt, "delay", delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.finish(StatusStopped, nil)
			return
		case <-s.stop:
			timer.Stop()
			s.finish(StatusStopped, nil)
			return
		case <-timer.C:
		}
		delay = min(delay*2, s.cfg.MaxRestartDelay)

		current, spawnErr = s.spawn()
		if spawnErr != nil {
			s.logger.Error("sidecar restart failed", "name", s.cfg.Name, "error", spawnErr)
		}
	}
}

// terminate signals the process group and waits for r to exit.
func (s *Supervisor) terminate(r *run) {
	pid := r.cmd.Process.Pid
	s.logger.Info("stopping sidecar", "name", s.cfg.Name, "pid", pid)

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("signalling sidecar", "name", s.cfg.Name, "error", err)
	}

	timer := time.NewTimer(s.cfg.GracefulTimeout)
	defer timer.Stop()
	select {
	case <-r.exited:
		return
	case <-timer.C:
		s.logger.Warn("sidecar ignored SIGTERM, killing", "name", s.cfg.Name, "timeout", s.cfg.GracefulTimeout)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Error("killing sidecar", "name", s.cfg.Name, "error", err)
	}
	<-r.exited
}

func (s *Supervisor) finish(status Status, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.pid = 0
	if err != nil {
		s.lastErr = err
	}
}

// Stop terminates the process and waits for supervision to end.
// It is a no-op on a supervisor that was never started.
func (s *Supervisor) Stop() error {
	s.mu.RLock()
	stop, done := s.stop, s.done
	s.mu.RUnlock()

	if done == nil {
		return nil
	}
	s.stopOnce.Do(func() { close(stop) })
	<-done
	return nil
}

// Done is closed once supervision has ended. It is nil before Start.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// Status returns the current lifecycle state.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// HealthCheck reports an error unless the process is running.
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st := s.Stats()
	if st.Status != StatusRunning {
		if st.LastError != "" {
			return fmt.Errorf("sidecar %s is %s: %s", st.Name, st.Status, st.LastError)
		}
		return fmt.Errorf("sidecar %s is %s", st.Name, st.Status)
	}
	return nil
}

// Stats returns a snapshot of the supervisor's state.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Name:     s.cfg.Name,
		Status:   s.status,
		PID:      s.pid,
		Restarts: s.restarts,
	}
	if s.status == StatusRunning {
		st.Uptime = time.Since(s.startedAt)
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

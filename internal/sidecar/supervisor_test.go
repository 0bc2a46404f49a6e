package sidecar

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Debug(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == "line" {
			l.lines = append(l.lines, args[i+1].(string))
		}
	}
}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}

func (l *recordingLogger) output() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func waitDone(t *testing.T, s *Supervisor) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("supervision did not end; status %s", s.Status())
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{Command: []string{"/bin/true"}})

	if s.cfg.Name != "/bin/true" {
		t.Errorf("Name = %q, want the command", s.cfg.Name)
	}
	if s.cfg.RestartDelay != DefaultRestartDelay {
		t.Errorf("RestartDelay = %v", s.cfg.RestartDelay)
	}
	if s.cfg.MaxRestartDelay != DefaultMaxRestartDelay {
		t.Errorf("MaxRestartDelay = %v", s.cfg.MaxRestartDelay)
	}
	if s.cfg.StableThreshold != DefaultStableThreshold {
		t.Errorf("StableThreshold = %v", s.cfg.StableThreshold)
	}
	if s.cfg.GracefulTimeout != DefaultGracefulTimeout {
		t.Errorf("GracefulTimeout = %v", s.cfg.GracefulTimeout)
	}
	if s.Status() != StatusStopped {
		t.Errorf("Status() = %s, want stopped", s.Status())
	}
	if s.Done() != nil {
		t.Error("Done() before Start should be nil")
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() before Start error = %v", err)
	}
}

func TestStart_NoCommand(t *testing.T) {
	if err := New(Config{Name: "empty"}).Start(context.Background()); !errors.Is(err, ErrNoCommand) {
		t.Errorf("Start() error = %v, want ErrNoCommand", err)
	}
}

func TestStart_InvalidBinary(t *testing.T) {
	s := New(Config{Name: "bad", Command: []string{"/nonexistent/binary"}, Restart: true})

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start() expected error")
	}
	if s.Status() != StatusFailed {
		t.Errorf("Status() = %s, want failed", s.Status())
	}
	if err := s.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() on failed sidecar should fail")
	}
}

func TestStartAndStop(t *testing.T) {
	s := New(Config{Name: "sleeper", Command: []string{"/bin/sleep", "60"}, Restart: true, GracefulTimeout: 2 * time.Second})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() expected error")
	}

	st := s.Stats()
	if st.Status != StatusRunning || st.PID == 0 {
		t.Errorf("Stats() = %+v, want running with a pid", st)
	}
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.Status() != StatusStopped {
		t.Errorf("Status() after Stop = %s, want stopped", s.Status())
	}
	if s.Stats().Restarts != 0 {
		t.Errorf("Restarts = %d, want 0", s.Stats().Restarts)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Config{Command: []string{"/bin/sleep", "60"}, Restart: true})

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()
	waitDone(t, s)

	if s.Status() != StatusStopped {
		t.Errorf("Status() = %s, want stopped", s.Status())
	}
}

func TestRestartLimit(t *testing.T) {
	s := New(Config{
		Name:         "crasher",
		Command:      []string{"/bin/sh", "-c", "exit 3"},
		Restart:      true,
		MaxRestarts:  2,
		RestartDelay: 10 * time.Millisecond,
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, s)

	st := s.Stats()
	if st.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", st.Status)
	}
	if st.Restarts != 2 {
		t.Errorf("Restarts = %d, want 2", st.Restarts)
	}
	if !strings.Contains(st.LastError, "exit status 3") {
		t.Errorf("LastError = %q, want exit status 3", st.LastError)
	}
}

func TestNoRestart(t *testing.T) {
	log := &recordingLogger{}
	s := New(Config{Command: []string{"/bin/sh", "-c", "echo hello; echo oops >&2"}})
	s.SetLogger(log)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, s)

	if s.Status() != StatusFinished {
		t.Errorf("Status() = %s, want finished", s.Status())
	}
	out := strings.Join(log.output(), "\n")
	if !strings.Contains(out, "hello") || !strings.Contains(out, "oops") {
		t.Errorf("captured output = %q, want stdout and stderr lines", out)
	}
}

func TestNoRestart_Failure(t *testing.T) {
	s := New(Config{Command: []string{"/bin/sh", "-c", "exit 1"}})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, s)

	if s.Status() != StatusFailed {
		t.Errorf("Status() = %s, want failed", s.Status())
	}
	if err := s.HealthCheck(context.Background()); err == nil || !strings.Contains(err.Error(), "exit status 1") {
		t.Errorf("HealthCheck() error = %v, want the exit status", err)
	}
}

func TestStopDuringBackoff(t *testing.T) {
	s := New(Config{
		Command:      []string{"/bin/sh", "-c", "exit 2"},
		Restart:      true,
		RestartDelay: time.Hour,
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for s.Status() != StatusBackoff && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Status() != StatusBackoff {
		t.Fatalf("Status() = %s, want backoff", s.Status())
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.Status() != StatusStopped {
		t.Errorf("Status() = %s, want stopped", s.Status())
	}
	if s.Stats().Restarts != 1 {
		t.Errorf("Restarts = %d, want 1", s.Stats().Restarts)
	}
}

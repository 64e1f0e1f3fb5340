package sentinel

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// GracePeriod is the time to wait after SIGTERM before sending SIGKILL.
	GracePeriod = 10 * time.Second

	// InitialBackoff is the initial delay before restarting after an abnormal exit.
	InitialBackoff = 5 * time.Second

	// MaxBackoff is the maximum delay between restarts.
	MaxBackoff = 10 * time.Minute

	BackoffFactor = 2.0

	// SuccessRunTime is how long the child must run before backoff resets.
	SuccessRunTime = 30 * time.Second

	// DebounceInterval is the delay after an fsnotify event before checking the checksum.
	DebounceInterval = 100 * time.Millisecond

	cleanExitDelay = time.Second
)

type Config struct {
	// Binary defaults to the running executable.
	Binary string
	// Args defaults to the "run" subcommand.
	Args           []string
	Stdout         io.Writer
	Stderr         io.Writer
	InitialBackoff time.Duration
}

// Sentinel keeps one child process alive. It restarts the child after it
// exits and whenever the binary on disk changes.
type Sentinel struct {
	binaryPath string
	args       []string
	stdout     io.Writer
	stderr     io.Writer
	initial    time.Duration
	lastHash   [sha256.Size]byte
	backoff    time.Duration
	logger     *slog.Logger
}

func New(cfg Config) (*Sentinel, error) {
	binaryPath := cfg.Binary
	if binaryPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve executable path: %w", err)
		}
		binaryPath = exe
	}
	// Watch the real file, not a symlink to it.
	binaryPath, err := filepath.EvalSymlinks(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve symlinks for binary: %w", err)
	}
	hash, err := HashFile(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to hash binary: %w", err)
	}

	args := cfg.Args
	if len(args) == 0 {
		args = []string{"run"}
	}
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = InitialBackoff
	}
	s := &Sentinel{
		binaryPath: binaryPath,
		args:       args,
		stdout:     cfg.Stdout,
		stderr:     cfg.Stderr,
		initial:    initial,
		lastHash:   hash,
		backoff:    initial,
		logger:     slog.With("component", "sentinel"),
	}
	if s.stdout == nil {
		s.stdout = os.Stdout
	}
	if s.stderr == nil {
		s.stderr = os.Stderr
	}
	return s, nil
}

// Run supervises the child until ctx is cancelled, then stops the child and
// returns.
func (s *Sentinel) Run(ctx context.Context) error {
	s.logger.Info("starting sentinel", "binary", s.binaryPath, "hash", fmt.Sprintf("%x", s.lastHash[:8]))

	updateCh := make(chan struct{}, 1)
	watchErr := make(chan error, 1)
	go func() { watchErr <- s.watchBinary(ctx, updateCh) }()

	err := s.mainLoop(ctx, updateCh)
	if werr := <-watchErr; werr != nil {
		s.logger.Warn("binary watcher stopped", "error", werr)
	}
	return err
}

func (s *Sentinel) mainLoop(ctx context.Context, updateCh <-chan struct{}) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		child, err := s.startChild()
		if err != nil {
			s.logger.Error("failed to start child", "error", err)
			if !s.sleepBackoff(ctx) {
				return nil
			}
			s.increaseBackoff()
			continue
		}

		startTime := time.Now()
		childDone := make(chan error, 1)
		go func() {
			childDone <- child.Wait()
		}()

		select {
		case err := <-childDone:
			elapsed := time.Since(startTime)
			if err != nil {
				s.logger.Warn("child exited with error", "elapsed", elapsed, "exit_code", ExitCode(err), "error", err)
				if elapsed >= SuccessRunTime {
					s.backoff = s.initial
				}
				if !s.sleepBackoff(ctx) {
					return nil
				}
				s.increaseBackoff()
				continue
			}
			// The child only exits cleanly when asked to, so this is unexpected.
			s.logger.Info("child exited cleanly", "elapsed", elapsed)
			s.backoff = s.initial
			if !sleep(ctx, cleanExitDelay) {
				return nil
			}

		case <-updateCh:
			s.logger.Info("binary update detected, restarting child")
			s.stopChild(child)
			<-childDone
			if h, err := HashFile(s.binaryPath); err == nil {
				s.lastHash = h
				s.logger.Info("new binary hash", "hash", fmt.Sprintf("%x", h[:8]))
			}
			s.backoff = s.initial

		case <-ctx.Done():
			s.logger.Info("shutting down child")
			s.stopChild(child)
			<-childDone
			s.logger.Info("sentinel exiting")
			return nil
		}
	}
}

func (s *Sentinel) startChild() (*exec.Cmd, error) {
	cmd := exec.Command(s.binaryPath, s.args...)
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr
	// The child reads its configuration from the same ASMITH_* environment.
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("exec %s: %w", s.binaryPath, err)
	}
	s.logger.Info("started child process", "pid", cmd.Process.Pid)
	return cmd, nil
}

// stopChild sends SIGTERM and schedules SIGKILL after GracePeriod. The caller
// still has to wait for the process.
func (s *Sentinel) stopChild(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.logger.Warn("failed to send SIGTERM", "pid", pid, "error", err)
		return
	}
	time.AfterFunc(GracePeriod, func() {
		if err := cmd.Process.Signal(syscall.Signal(0)); err == nil {
			s.logger.Warn("grace period expired, killing child", "pid", pid)
			_ = cmd.Process.Kill()
		}
	})
}

// watchBinary watches the directory holding the binary, since atomic deploys
// replace the file with a rename.
func (s *Sentinel) watchBinary(ctx context.Context, updateCh chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	watchDir := filepath.Dir(s.binaryPath)
	binaryName := filepath.Base(s.binaryPath)
	if err := watcher.Add(watchDir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", watchDir, err)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	var mu sync.Mutex
	current := s.lastHash

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != binaryName {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(DebounceInterval, func() {
				h, err := HashFile(s.binaryPath)
				if err != nil {
					s.logger.Warn("failed to hash binary after event", "error", err)
					return
				}
				mu.Lock()
				changed := h != current
				current = h
				mu.Unlock()
				if !changed {
					return
				}
				select {
				case updateCh <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("fsnotify error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}

func HashFile(path string) ([sha256.Size]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [sha256.Size]byte{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return [sha256.Size]byte{}, fmt.Errorf("hash %s: %w", path, err)
	}
	var result [sha256.Size]byte
	copy(result[:], h.Sum(nil))
	return result, nil
}

// sleepBackoff waits for the current backoff and reports false when ctx ended
// first.
func (s *Sentinel) sleepBackoff(ctx context.Context) bool {
	s.logger.Info("waiting before restart", "backoff", s.backoff)
	return sleep(ctx, s.backoff)
}

func (s *Sentinel) increaseBackoff() {
	s.backoff = time.Duration(float64(s.backoff) * BackoffFactor)
	if s.backoff > MaxBackoff {
		s.backoff = MaxBackoff
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// ExitCode returns the exit status carried by err, or -1.
func ExitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

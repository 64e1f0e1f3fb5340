package sentinel

import (
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "testfile")
	content := []byte("hello world")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	got, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, sha256.Sum256(content), got)

	other := filepath.Join(dir, "other")
	require.NoError(t, os.WriteFile(other, []byte("content B"), 0o644))
	h2, err := HashFile(other)
	require.NoError(t, err)
	assert.NotEqual(t, got, h2)

	_, err = HashFile("/nonexistent/file/path")
	assert.Error(t, err)
}

func TestBackoffProgression(t *testing.T) {
	s := &Sentinel{initial: InitialBackoff, backoff: InitialBackoff}
	expected := []time.Duration{
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		80 * time.Second,
		160 * time.Second,
		320 * time.Second,
		600 * time.Second,
		600 * time.Second,
	}
	for i, want := range expected {
		s.increaseBackoff()
		assert.Equal(t, want, s.backoff, "step %d", i+1)
	}
}

func TestSleepBackoffInterruptible(t *testing.T) {
	s := &Sentinel{backoff: 10 * time.Second, logger: discardLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	assert.False(t, s.sleepBackoff(ctx))
	assert.Less(t, time.Since(start), time.Second)
}

func TestStopChild_NilCmd(t *testing.T) {
	s := &Sentinel{logger: discardLogger()}
	s.stopChild(nil)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, -1, ExitCode(errors.New("x")))
	if runtime.GOOS == "windows" {
		return
	}
	err := exec.Command("/bin/sh", "-c", "exit 3").Run()
	assert.Equal(t, 3, ExitCode(err))
}

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	tmp := path + ".new"
	require.NoError(t, os.WriteFile(tmp, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	require.NoError(t, os.Rename(tmp, path))
}

func countLines(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return strings.Count(string(data), "\n")
}

func skipUnlessUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}
}

func TestRun_RestartsCrashedChild(t *testing.T) {
	skipUnlessUnix(t)
	dir := t.TempDir()
	marker := filepath.Join(dir, "starts")
	bin := filepath.Join(dir, "child")
	writeScript(t, bin, "echo start >> "+marker+"\nexit 1")

	s, err := New(Config{Binary: bin, Stdout: io.Discard, Stderr: io.Discard, InitialBackoff: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, []string{"run"}, s.args)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return countLines(marker) >= 3 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestRun_StopsChildOnCancel(t *testing.T) {
	skipUnlessUnix(t)
	dir := t.TempDir()
	marker := filepath.Join(dir, "starts")
	bin := filepath.Join(dir, "child")
	writeScript(t, bin, "echo start >> "+marker+"\nexec sleep 30")

	s, err := New(Config{Binary: bin, Stdout: io.Discard, Stderr: io.Discard})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return countLines(marker) == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sentinel did not stop the child")
	}
}

func TestRun_RestartsOnBinaryUpdate(t *testing.T) {
	skipUnlessUnix(t)
	dir := t.TempDir()
	marker := filepath.Join(dir, "starts")
	bin := filepath.Join(dir, "child")
	writeScript(t, bin, "echo v1 >> "+marker+"\nexec sleep 30")

	s, err := New(Config{Binary: bin, Stdout: io.Discard, Stderr: io.Discard})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return countLines(marker) == 1 }, 5*time.Second, 10*time.Millisecond)
	writeScript(t, bin, "echo v2 >> "+marker+"\nexec sleep 30")

	require.Eventually(t, func() bool { return countLines(marker) == 2 }, 5*time.Second, 10*time.Millisecond)
	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "v1\nv2\n", string(data))

	cancel()
	require.NoError(t, <-done)
}

func TestNew_MissingBinary(t *testing.T) {
	_, err := New(Config{Binary: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

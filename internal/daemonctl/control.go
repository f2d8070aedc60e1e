package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"loopdeck/internal/config"
)

const pollInterval = 200 * time.Millisecond

// LaunchOptions are forwarded to `loopdeck daemon run`.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
	Verbose    bool
}

func (o LaunchOptions) args() []string {
	args := []string{"daemon", "run"}
	if v := strings.TrimSpace(o.ConfigPath); v != "" {
		args = append(args, "--config", v)
	}
	if v := strings.TrimSpace(o.LogLevel); v != "" {
		args = append(args, "--log-level", v)
	}
	if o.Verbose {
		args = append(args, "--verbose")
	}
	return args
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult describes what EnsureStarted did.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
	Address  string
}

// StopResult describes what StopAndTerminate did.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// RestartResult pairs the stop and start halves of Restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// Launch spawns `daemon run` in its own session so it outlives the CLI.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return errors.New("launch daemon: executable path is empty")
	}
	proc := exec.Command(executablePath, opts.args()...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// until calls probe every pollInterval until it reports done, the context
// ends, or timeout passes. The last probe error is returned on timeout.
func until(ctx context.Context, timeout time.Duration, probe func(context.Context) (bool, error)) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()

	var last error
	for {
		done, err := probe(ctx)
		if done {
			return nil
		}
		last = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if last == nil {
				last = fmt.Errorf("gave up after %s", timeout)
			}
			return last
		case <-tick.C:
		}
	}
}

// WaitForClient returns a client once the daemon answers /api/health.
func WaitForClient(ctx context.Context, cfg *config.Config, timeout time.Duration) (*Client, error) {
	client, err := NewClient(cfg, "")
	if err != nil {
		return nil, err
	}
	err = until(ctx, timeout, func(ctx context.Context) (bool, error) {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		err := client.Health(pingCtx)
		return err == nil, err
	})
	if err != nil {
		return nil, fmt.Errorf("daemon failed to start: %w", err)
	}
	return client, nil
}

// WaitForShutdown returns once the daemon API stops answering.
func WaitForShutdown(ctx context.Context, cfg *config.Config, timeout time.Duration) error {
	err := until(ctx, timeout, func(ctx context.Context) (bool, error) {
		running, _, err := ProcessInfo(ctx, cfg)
		return err == nil && !running, err
	})
	if err != nil {
		return fmt.Errorf("daemon did not stop within %s: %w", timeout, err)
	}
	return nil
}

// ProcessInfo reports whether the daemon API answers, with its PID when the
// status call succeeds.
func ProcessInfo(ctx context.Context, cfg *config.Config) (bool, int, error) {
	client, err := NewClient(cfg, "")
	if errors.Is(err, ErrDaemonNotRunning) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	switch err := client.Health(pingCtx); {
	case IsUnavailable(err):
		return false, 0, nil
	case err != nil:
		return false, 0, err
	}
	status, err := client.Status(pingCtx)
	if err != nil {
		return true, 0, err
	}
	return true, status.PID, nil
}

// EnsureStarted launches the daemon unless one already answers.
func EnsureStarted(ctx context.Context, cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if running, pid, err := ProcessInfo(ctx, cfg); err == nil && running {
		return StartResult{State: StartStateAlreadyRunning, PID: pid}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	client, err := WaitForClient(ctx, cfg, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	result := StartResult{State: StartStateStarted, Launched: true, Address: client.baseURL}
	if status, err := client.Status(ctx); err == nil {
		result.PID = status.PID
	}
	return result, nil
}

// ReadPIDFile returns the PID the daemon recorded at startup, or 0 when the
// file is missing or unreadable as a positive integer.
func ReadPIDFile(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, nil
	}
	return pid, nil
}

func signalPID(pid int, sig unix.Signal) error {
	if pid == os.Getpid() {
		return fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	if err := unix.Kill(pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal %s to pid %d: %w", unix.SignalName(sig), pid, err)
	}
	return nil
}

// ForceKillProcess SIGKILLs the daemon and removes the files it would have
// cleaned up on a graceful exit.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		pid = fallbackPID
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if err := signalPID(pid, unix.SIGKILL); err != nil {
		return 0, err
	}
	for _, path := range []string{pidPath, lockPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return pid, fmt.Errorf("remove %q: %w", path, err)
		}
	}
	return pid, nil
}

// StopAndTerminate asks the daemon to exit with SIGTERM, which lets in-flight
// stages finish, and falls back to SIGKILL once gracePeriod passes.
func StopAndTerminate(ctx context.Context, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	running, pid, err := ProcessInfo(ctx, cfg)
	switch {
	case err != nil && !running:
		return StopResult{}, err
	case !running:
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == 0 {
		if pid, err = ReadPIDFile(cfg.DaemonPIDPath()); err != nil {
			return StopResult{}, err
		}
	}
	if pid <= 0 {
		return StopResult{}, errors.New("unable to determine daemon pid")
	}

	result := StopResult{PID: pid}
	if err := signalPID(pid, unix.SIGTERM); err != nil {
		return result, err
	}
	result.StopAcknowledged = true
	if WaitForShutdown(ctx, cfg, gracePeriod) == nil {
		return result, nil
	}

	killed, err := ForceKillProcess(cfg.DaemonPIDPath(), cfg.DaemonLockPath(), pid)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	result.ForcedKill = true
	result.PID = killed
	return result, nil
}

// Restart stops a running daemon, then starts a fresh one.
func Restart(ctx context.Context, cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	var out RestartResult
	stop, err := StopAndTerminate(ctx, cfg, stopGracePeriod)
	switch {
	case errors.Is(err, ErrDaemonNotRunning):
	case err != nil:
		return out, err
	default:
		out.WasRunning = true
		out.Stop = stop
	}
	if out.Start, err = EnsureStarted(ctx, cfg, executablePath, opts, startWaitTimeout); err != nil {
		return RestartResult{}, err
	}
	return out, nil
}

/*******************************************************************************
 * Copyright (c) 2026 Genome Research Ltd.
 *
 * Permission is hereby granted, free of charge, to any person obtaining
 * a copy of this software and associated documentation files (the
 * "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish,
 * distribute, sublicense, and/or sell copies of the Software, and to
 * permit persons to whom the Software is furnished to do so, subject to
 * the following conditions:
 *
 * The above copyright notice and this permission notice shall be included
 * in all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
 * EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
 * MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY
 * CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
 * TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 ******************************************************************************/

package daemon

import (
	"context"
	"errors"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/inconshreveable/log15"
	"github.com/wtsi-hgi/xferd/errs"
)

const (
	pollInterval = 50 * time.Millisecond
	dialTimeout  = 100 * time.Millisecond
)

// Supervisor starts and stops a single daemon process.
type Supervisor struct {
	opts Options
	log  log15.Logger

	mu      sync.Mutex
	port    int
	cmd     *exec.Cmd
	exited  chan struct{}
	exitErr error
	logMark logMark
}

// New returns a Supervisor for the daemon described by opts. Nothing is
// started until you call Start().
func New(opts Options) *Supervisor {
	opts = opts.withDefaults()

	return &Supervisor{
		opts: opts,
		log:  opts.Logger.New("daemon", opts.Name()),
		port: opts.Port,
	}
}

// Options returns the options we were made with (with defaults filled in).
func (s *Supervisor) Options() Options {
	return s.opts
}

// Port returns the port the daemon listens on: the configured one, or the one
// discovered after starting it with port 0.
func (s *Supervisor) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.port
}

// Addr returns the host:port to connect to the daemon on.
func (s *Supervisor) Addr() string {
	return net.JoinHostPort(s.opts.Address, strconv.Itoa(s.Port()))
}

// Owned returns true if we started a daemon that we haven't yet shut down.
func (s *Supervisor) Owned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cmd != nil
}

// PID returns the process ID of the daemon we started, or 0.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return 0
	}

	return s.cmd.Process.Pid
}

// Exited returns true if the daemon we started has since exited.
func (s *Supervisor) Exited() bool {
	s.mu.Lock()
	exited := s.exited
	s.mu.Unlock()

	if exited == nil {
		return false
	}

	select {
	case <-exited:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the daemon we started exits, or
// nil if we haven't started one.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.exited
}

// LastLogLine returns the last line the daemon logged since we started it (or
// ever, if we didn't).
func (s *Supervisor) LastLogLine() string {
	s.mu.Lock()
	mark := s.logMark
	s.mu.Unlock()

	path := s.opts.LogPath()

	line, err := lastLineFrom(path, mark.offset(path))
	if err != nil {
		s.log.Warn("could not read daemon log", "err", err)
	}

	return line
}

// StartupError returns an errs.DaemonStartupFailed error describing why the
// daemon we started went away, using the last thing it logged.
func (s *Supervisor) StartupError() error {
	detail := s.LastLogLine()

	if detail == "" {
		detail, _ = LastLine(s.opts.ErrPath()) //nolint:errcheck
	}

	s.mu.Lock()
	exitErr := s.exitErr
	s.mu.Unlock()

	if detail == "" && exitErr != nil {
		detail = exitErr.Error()
	}

	return errs.New(errs.DaemonStartupFailed, detail)
}

// Start writes the daemon's config file and starts it in its own process
// group, with stdout and stderr appended to files in the log directory. It then
// waits up to the grace period for the daemon to come up:
//
// With a fixed port, it's up once the port accepts connections, and we stop
// waiting early if so; otherwise the caller's handshake is the real test.
//
// With port 0, it's up once its log says what port it is listening on. Not
// finding out in time gives an errs.PortDiscoveryFailed error and the daemon is
// killed.
//
// If the daemon exits during this time, you get an errs.DaemonStartupFailed
// error with the last line it logged.
//
// Calling Start while a started daemon is still running does nothing.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.Owned() && !s.Exited() {
		return nil
	}

	if s.opts.Binary == "" {
		return errs.New(errs.DaemonStartupFailed, ErrNoBinary)
	}

	confPath, err := s.opts.WriteConfig()
	if err != nil {
		return errs.Wrap(errs.DaemonStartupFailed, err)
	}

	watcher := s.watchLogDir()
	if watcher != nil {
		defer watcher.Close()
	}

	if err = s.spawn(confPath); err != nil {
		return err
	}

	if s.opts.Port == 0 {
		err = s.awaitPort(ctx, watcher)
	} else {
		err = s.awaitListening(ctx)
	}

	if err != nil {
		if !s.Exited() {
			s.Shutdown() //nolint:errcheck
		} else {
			s.release()
		}
	}

	return err
}

func (s *Supervisor) watchLogDir() *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Warn("could not watch log directory", "err", err)

		return nil
	}

	if err = watcher.Add(s.opts.LogDir); err != nil {
		s.log.Warn("could not watch log directory", "err", err)
		watcher.Close()

		return nil
	}

	return watcher
}

func (s *Supervisor) spawn(confPath string) error {
	stdout, err := openAppend(s.opts.OutPath())
	if err != nil {
		return errs.Wrap(errs.DaemonStartupFailed, err)
	}

	stderr, err := openAppend(s.opts.ErrPath())
	if err != nil {
		stdout.Close()

		return errs.Wrap(errs.DaemonStartupFailed, err)
	}

	mark := markLog(s.opts.LogPath())

	cmd := exec.Command(s.opts.Binary, "--config", confPath) //nolint:gosec
	cmd.Env = append(os.Environ(), s.opts.Env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	s.log.Info("starting daemon", "cmd", cmd.String())

	if err = cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()

		return errs.Wrap(errs.DaemonStartupFailed, err)
	}

	exited := make(chan struct{})

	s.mu.Lock()
	s.cmd = cmd
	s.exited = exited
	s.exitErr = nil
	s.logMark = mark
	s.port = s.opts.Port
	s.mu.Unlock()

	s.log.Debug("daemon started", "pid", cmd.Process.Pid)

	go func() {
		err := cmd.Wait()

		stdout.Close()
		stderr.Close()

		s.mu.Lock()
		s.exitErr = err
		s.mu.Unlock()

		s.log.Debug("daemon exited", "pid", cmd.Process.Pid, "err", err)
		close(exited)
	}()

	return nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fileMode)
}

// awaitListening waits for our fixed port to accept connections, the daemon to
// exit, or the grace period to pass.
func (s *Supervisor) awaitListening(ctx context.Context) error {
	grace := time.NewTimer(s.opts.Grace)
	defer grace.Stop()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	exited := s.Done()
	addr := s.opts.Addr()

	for {
		select {
		case <-exited:
			return s.StartupError()
		case <-ctx.Done():
			return ctx.Err()
		case <-grace.C:
			s.log.Debug("daemon not yet listening after grace period", "addr", addr)

			return nil
		case <-ticker.C:
			if conn, err := net.DialTimeout("tcp", addr, dialTimeout); err == nil {
				conn.Close()

				s.log.Debug("daemon listening", "addr", addr)

				return nil
			}
		}
	}
}

// awaitPort waits for the daemon to log the port it chose. The log directory
// watcher, if any, lets us react as soon as it writes; we also poll in case
// the watcher misses anything. Until the grace period is up we only believe a
// logged port once something is listening on it; after that we take whatever
// the last log line says.
func (s *Supervisor) awaitPort(ctx context.Context, watcher *fsnotify.Watcher) error {
	grace := time.NewTimer(s.opts.Grace)
	defer grace.Stop()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var events chan fsnotify.Event
	if watcher != nil {
		events = watcher.Events
	}

	exited := s.Done()
	logPath := filepath.Clean(s.opts.LogPath())

	for {
		select {
		case <-exited:
			return s.StartupError()
		case <-ctx.Done():
			return ctx.Err()
		case <-grace.C:
			if s.discoverPort(false) == nil {
				return nil
			}

			if s.Exited() {
				return s.StartupError()
			}

			return errs.New(errs.PortDiscoveryFailed, s.LastLogLine())
		case event := <-events:
			if filepath.Clean(event.Name) != logPath || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}

			if s.discoverPort(true) == nil {
				return nil
			}
		case <-ticker.C:
			if s.discoverPort(true) == nil {
				return nil
			}
		}
	}
}

// discoverPort sets our port to the one in the daemon's last log line. With
// confirm, the port must also be accepting connections.
func (s *Supervisor) discoverPort(confirm bool) error {
	line := s.LastLogLine()
	if line == "" {
		return errs.New(errs.PortDiscoveryFailed, "daemon has not logged anything")
	}

	port, err := ParsePort(line)
	if err != nil {
		return err
	}

	if confirm {
		addr := net.JoinHostPort(s.opts.Address, strconv.Itoa(port))

		conn, errd := net.DialTimeout("tcp", addr, dialTimeout)
		if errd != nil {
			return errs.Wrap(errs.PortDiscoveryFailed, errd)
		}

		conn.Close()
	}

	s.mu.Lock()
	s.port = port
	s.mu.Unlock()

	s.log.Info("discovered daemon port", "port", port)

	return nil
}

// Shutdown kills the daemon (and anything else in its process group) if we
// started it, and waits for it to exit. It does nothing if we didn't start a
// daemon, or already shut it down.
func (s *Supervisor) Shutdown() error {
	s.mu.Lock()
	cmd, exited := s.cmd, s.exited
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}

	pid := cmd.Process.Pid

	select {
	case <-exited:
	default:
		s.log.Info("killing daemon", "pid", pid)

		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
			if err = cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				return err
			}
		}

		<-exited
	}

	s.release()

	return nil
}

func (s *Supervisor) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cmd = nil
	s.port = s.opts.Port
}

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
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrNotRunning is returned when a recorded daemon is no longer running.
var ErrNotRunning = errors.New("daemon not running")

// Stats describe a running daemon process.
type Stats struct {
	PID        int
	Name       string
	Running    bool
	CPUPercent float64
	RSS        uint64
	CreateTime int64
}

// ProcessStats returns the Stats of the process with the given pid.
func ProcessStats(pid int) (*Stats, error) {
	p, err := process.NewProcess(int32(pid)) //nolint:gosec
	if err != nil {
		return nil, ErrNotRunning
	}

	running, err := p.IsRunning()
	if err != nil || !running {
		return nil, ErrNotRunning
	}

	stats := &Stats{PID: pid, Running: true}
	stats.Name, _ = p.Name()             //nolint:errcheck
	stats.CPUPercent, _ = p.CPUPercent() //nolint:errcheck
	stats.CreateTime, _ = p.CreateTime() //nolint:errcheck

	if mem, errm := p.MemoryInfo(); errm == nil {
		stats.RSS = mem.RSS
	}

	return stats, nil
}

// Stats returns the Stats of the daemon we started.
func (s *Supervisor) Stats() (*Stats, error) {
	pid := s.PID()
	if pid == 0 || s.Exited() {
		return nil, ErrNotRunning
	}

	return ProcessStats(pid)
}

// PIDFilePath returns where WritePIDFile records the daemon's pid.
func (o Options) PIDFilePath() string {
	return o.path(".pid")
}

// WritePIDFile records the pid of the daemon we started, so that a later
// process can find it with FindRunning().
func (s *Supervisor) WritePIDFile() error {
	pid := s.PID()
	if pid == 0 {
		return ErrNotRunning
	}

	return os.WriteFile(s.opts.PIDFilePath(), []byte(strconv.Itoa(pid)+"\n"), fileMode)
}

// FindRunning returns the Stats of the daemon whose pid was recorded by
// WritePIDFile, confirming that the process is still running the expected
// binary. It returns ErrNotRunning if not.
func FindRunning(opts Options) (*Stats, error) {
	opts = opts.withDefaults()

	data, err := os.ReadFile(opts.PIDFilePath())
	if err != nil {
		return nil, ErrNotRunning
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, ErrNotRunning
	}

	stats, err := ProcessStats(pid)
	if err != nil {
		return nil, err
	}

	if !sameExe(stats.Name, opts.Binary) {
		return nil, ErrNotRunning
	}

	return stats, nil
}

// sameExe compares a process name against a binary path. Process names can be
// truncated (to 15 chars on linux), so a prefix match is accepted.
func sameExe(name, binary string) bool {
	base := filepath.Base(binary)

	return name != "" && strings.HasPrefix(base, name)
}

// Stop kills the daemon recorded in the pid file by an earlier WritePIDFile(),
// and removes the pid file. It returns ErrNotRunning if there was no such
// daemon running.
func Stop(opts Options) error {
	opts = opts.withDefaults()

	stats, err := FindRunning(opts)
	if err != nil {
		os.Remove(opts.PIDFilePath())

		return err
	}

	p, err := process.NewProcess(int32(stats.PID)) //nolint:gosec
	if err != nil {
		return err
	}

	opts.Logger.Info("killing daemon", "pid", stats.PID)

	if err = p.Kill(); err != nil {
		return err
	}

	return os.Remove(opts.PIDFilePath())
}

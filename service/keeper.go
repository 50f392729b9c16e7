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

// package service keeps a transfer daemon running, restarting it whenever it
// exits, and lets that be installed as a system service.

package service

import (
	"context"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/wtsi-hgi/xferd/daemon"
	"github.com/wtsi-ssg/wr/backoff"
	btime "github.com/wtsi-ssg/wr/backoff/time"
	"github.com/wtsi-ssg/wr/retry"
)

const (
	// DefaultStartAttempts is how many times in a row we try to start the
	// daemon before giving up.
	DefaultStartAttempts = 5

	startBackoffMin    = 500 * time.Millisecond
	startBackoffMax    = 10 * time.Second
	startBackoffFactor = 2
)

// Keeper keeps a single daemon running.
type Keeper struct {
	sup      *daemon.Supervisor
	log      log15.Logger
	attempts int

	mu       sync.Mutex
	restarts int
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

// NewKeeper returns a Keeper for the daemon described by opts. Nothing is
// started until you call Run() or Start().
func NewKeeper(opts daemon.Options) *Keeper {
	sup := daemon.New(opts)

	return &Keeper{
		sup:      sup,
		log:      sup.Options().Logger.New("keeper", sup.Options().Name()),
		attempts: DefaultStartAttempts,
	}
}

// Supervisor returns the supervisor of the daemon we keep running.
func (k *Keeper) Supervisor() *daemon.Supervisor {
	return k.sup
}

// Restarts returns how many times we've had to restart the daemon after it
// exited.
func (k *Keeper) Restarts() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.restarts
}

// Run starts the daemon and restarts it every time it exits, until ctx is
// cancelled, at which point the daemon is killed and nil returned. If the
// daemon can't be started after DefaultStartAttempts tries, returns the
// startup error.
func (k *Keeper) Run(ctx context.Context) error {
	defer k.sup.Shutdown() //nolint:errcheck

	for {
		if err := k.start(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		select {
		case <-ctx.Done():
			k.log.Info("stopping daemon", "pid", k.sup.PID())

			return nil
		case <-k.sup.Done():
		}

		k.log.Warn("daemon exited, restarting", "last_log", k.sup.LastLogLine())

		k.mu.Lock()
		k.restarts++
		k.mu.Unlock()
	}
}

func (k *Keeper) start(ctx context.Context) error {
	var lastErr error

	status := retry.Do(ctx, func() error {
		lastErr = k.sup.Start(ctx)
		if lastErr != nil {
			k.log.Error("daemon failed to start", "err", lastErr)
		}

		return lastErr
	}, retry.Untils{&retry.UntilLimit{Max: k.attempts}, &retry.UntilNoError{}},
		&backoff.Backoff{
			Min:     startBackoffMin,
			Max:     startBackoffMax,
			Factor:  startBackoffFactor,
			Sleeper: &btime.Sleeper{},
		}, "start transfer daemon")

	if lastErr != nil {
		return lastErr
	}

	if status.Err != nil {
		return status.Err
	}

	if err := k.sup.WritePIDFile(); err != nil {
		k.log.Warn("could not write pid file", "err", err)
	}

	k.log.Info("daemon running", "pid", k.sup.PID(), "addr", k.sup.Addr())

	return nil
}

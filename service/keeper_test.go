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

package service

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/wtsi-hgi/xferd/daemon"
	"github.com/wtsi-hgi/xferd/errs"
	"github.com/wtsi-hgi/xferd/internal/fakedaemon"
	"github.com/wtsi-hgi/xferd/internal/testutil"
)

func TestMain(m *testing.M) {
	if fakedaemon.Requested() {
		os.Exit(fakedaemon.Main(os.Args[1:]))
	}

	os.Exit(m.Run())
}

func keeperOptions(t *testing.T, mode string) daemon.Options {
	t.Helper()

	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}

	return daemon.Options{
		Binary:  exe,
		Address: "127.0.0.1",
		LogDir:  t.TempDir(),
		Runtime: daemon.Runtime{Embedded: true},
		Grace:   10 * time.Second,
		Env:     fakedaemon.Env(mode, fakedaemon.Behaviour{}),
	}
}

func waitForNewPID(t *testing.T, k *Keeper, old int) int {
	t.Helper()

	var pid int

	So(testutil.RetryUntilWorksCustom(t, func() error {
		pid = k.Supervisor().PID()
		if pid == 0 || pid == old || k.Supervisor().Exited() {
			return errors.New("no new daemon")
		}

		return nil
	}, 20*time.Second, 50*time.Millisecond), ShouldBeNil)

	return pid
}

func TestKeeper(t *testing.T) {
	Convey("A Keeper keeps a daemon running until cancelled", t, func() {
		k := NewKeeper(keeperOptions(t, fakedaemon.ModeServe))

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)

		go func() { errCh <- k.Run(ctx) }()

		pid := waitForNewPID(t, k, 0)
		So(k.Restarts(), ShouldEqual, 0)

		So(testutil.RetryUntilWorks(t, func() error {
			content, err := os.ReadFile(k.Supervisor().Options().PIDFilePath())
			if err != nil {
				return err
			}

			if strings.TrimSpace(string(content)) != strconv.Itoa(pid) {
				return errors.New("wrong pid recorded")
			}

			return nil
		}), ShouldBeNil)

		So(syscall.Kill(pid, syscall.SIGKILL), ShouldBeNil)

		newPID := waitForNewPID(t, k, pid)
		So(newPID, ShouldNotEqual, pid)
		So(k.Restarts(), ShouldEqual, 1)

		cancel()
		So(<-errCh, ShouldBeNil)
		So(testutil.WaitForProcessExit(t, newPID), ShouldBeTrue)
	})

	Convey("A Keeper gives up on a daemon that won't start", t, func() {
		k := NewKeeper(keeperOptions(t, fakedaemon.ModeFailStart))
		k.attempts = 2

		err := k.Run(context.Background())
		So(err, ShouldNotBeNil)
		So(errs.Kind(err), ShouldEqual, errs.DaemonStartupFailed)
		So(err.Error(), ShouldContainSubstring, fakedaemon.StartupError)
	})

	Convey("As a service, Start runs the Keeper and Stop kills the daemon", t, func() {
		k := NewKeeper(keeperOptions(t, fakedaemon.ModeServe))

		So(k.Stop(nil), ShouldBeNil)
		So(k.Start(nil), ShouldBeNil)

		pid := waitForNewPID(t, k, 0)

		So(k.Stop(nil), ShouldBeNil)
		So(testutil.WaitForProcessExit(t, pid), ShouldBeTrue)
	})
}

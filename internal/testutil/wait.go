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

package testutil

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/wtsi-ssg/wr/backoff"
	btime "github.com/wtsi-ssg/wr/backoff/time"
	"github.com/wtsi-ssg/wr/retry"
)

const retryTimeout = 5 * time.Second

// ErrProcessAlive is returned while a process still exists.
var ErrProcessAlive = errors.New("process still alive")

// RetryUntilWorks retries f until it returns nil or 5 seconds pass.
func RetryUntilWorks(tb testing.TB, f func() error) error {
	tb.Helper()

	return retryUntilWorks(tb, f, retryTimeout, btime.SecondsRangeBackoff())
}

// RetryUntilWorksCustom retries f until it returns nil or timeout expires,
// waiting wait between tries.
func RetryUntilWorksCustom(tb testing.TB, f func() error, timeout time.Duration, wait time.Duration) error {
	tb.Helper()

	return retryUntilWorks(tb, f, timeout, &backoff.Backoff{
		Min:     wait,
		Max:     wait,
		Factor:  1,
		Sleeper: &btime.Sleeper{},
	})
}

func retryUntilWorks(tb testing.TB, f func() error, timeout time.Duration, backoff *backoff.Backoff) error {
	tb.Helper()

	ctx, cancelFn := context.WithTimeout(context.Background(), timeout)
	defer cancelFn()

	status := retry.Do(ctx, f, &retry.UntilNoError{}, backoff, "wait for test condition")

	return status.Err
}

// ProcessExists returns true if a process with the given pid exists (and isn't
// a zombie we could still signal; reaped processes don't exist).
func ProcessExists(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := syscall.Kill(pid, 0)

	return err == nil || errors.Is(err, syscall.EPERM)
}

// WaitForProcessExit waits for the process with the given pid to go away,
// returning false on timeout.
func WaitForProcessExit(tb testing.TB, pid int) bool {
	tb.Helper()

	err := RetryUntilWorksCustom(tb, func() error {
		if ProcessExists(pid) {
			return ErrProcessAlive
		}

		return nil
	}, retryTimeout, 10*time.Millisecond)

	return err == nil
}

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

// package client is the transfer client: it makes sure a transfer daemon is
// running and reachable, submits transfer specs to it, and follows each
// transfer to completion.

package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/wtsi-hgi/xferd/daemon"
	"github.com/wtsi-hgi/xferd/errs"
	"github.com/wtsi-hgi/xferd/spec"
	"github.com/wtsi-hgi/xferd/transferd"
	"github.com/wtsi-ssg/wr/backoff"
	btime "github.com/wtsi-ssg/wr/backoff/time"
	"github.com/wtsi-ssg/wr/retry"
)

const (
	// DefaultAttempts is how many times EnsureRunning tries to get a
	// connection.
	DefaultAttempts = 2

	retryBackoff = 250 * time.Millisecond
	retryLimit   = 10
)

// Errors that can be matched with errors.Is() against anything returned by a
// Client.
var (
	ErrDaemonStartupFailed = errs.New(errs.DaemonStartupFailed, "")
	ErrConnectFailed       = errs.New(errs.ConnectFailed, "")
	ErrPortDiscoveryFailed = errs.New(errs.PortDiscoveryFailed, "")
	ErrSubmissionFailed    = errs.New(errs.SubmissionFailed, "")
	ErrTransferFailed      = errs.New(errs.TransferFailed, "")
	ErrUnknownJob          = errs.New(errs.UnknownJob, "")
	ErrStreamBroken        = errs.New(errs.StreamBroken, "")
)

// FallbackPolicy says what to do with the http_fallback field of transfer
// specs before submitting them.
type FallbackPolicy int

const (
	// FallbackDisable sets http_fallback to false, working around daemons
	// that mishandle it.
	FallbackDisable FallbackPolicy = iota

	// FallbackEnable sets http_fallback to true.
	FallbackEnable

	// FallbackAsSpec leaves the spec alone.
	FallbackAsSpec
)

// ParseFallbackPolicy converts "disable", "enable" or "spec" to a
// FallbackPolicy. Blank means disable.
func ParseFallbackPolicy(name string) (FallbackPolicy, error) {
	switch name {
	case "", "disable":
		return FallbackDisable, nil
	case "enable":
		return FallbackEnable, nil
	case "spec":
		return FallbackAsSpec, nil
	default:
		return FallbackDisable, Error{Msg: ErrInvalidFallback, Val: name}
	}
}

// Error is returned for invalid Options.
type Error struct {
	Msg string
	Val string
}

func (e Error) Error() string {
	return e.Msg + ": " + e.Val
}

const ErrInvalidFallback = "invalid http fallback policy"

// Options configure a Client.
type Options struct {
	// Daemon describes the daemon to connect to, and to start if it isn't
	// already running.
	Daemon daemon.Options

	// ConnectTimeout bounds each attempt to connect to the daemon.
	ConnectTimeout time.Duration

	// Attempts is how many connection attempts EnsureRunning makes.
	Attempts int

	HTTPFallback FallbackPolicy

	// ShutdownAfter makes SubmitAndWait shut down any daemon we started when
	// it returns.
	ShutdownAfter bool

	TransferType transferd.TransferType

	// Progress, if set, is called with every status update received while
	// waiting on a transfer.
	Progress func(*transferd.TransferResponse)

	Logger log15.Logger
}

// Client submits transfers to a transfer daemon, starting one if necessary.
// It is not safe for concurrent use; use one Client per daemon.
type Client struct {
	opts Options
	log  log15.Logger
	sup  *daemon.Supervisor

	mu   sync.Mutex
	conn *transferd.Conn
}

// New returns a Client. Nothing happens until you call EnsureRunning() or
// SubmitAndWait().
func New(opts Options) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = transferd.DefaultConnectTimeout
	}

	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}

	if opts.Logger == nil {
		opts.Logger = log15.New()
		opts.Logger.SetHandler(log15.DiscardHandler())
	}

	if opts.Daemon.Logger == nil {
		opts.Daemon.Logger = opts.Logger
	}

	return &Client{
		opts: opts,
		log:  opts.Logger,
		sup:  daemon.New(opts.Daemon),
	}
}

// Supervisor returns the supervisor of our daemon.
func (c *Client) Supervisor() *daemon.Supervisor {
	return c.sup
}

// Connected returns true if we have a connection to a daemon.
func (c *Client) Connected() bool {
	return c.getConn() != nil
}

func (c *Client) getConn() *transferd.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn
}

func (c *Client) setConn(conn *transferd.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn = conn
}

// Addr returns the address of the daemon we're using (or would use).
func (c *Client) Addr() string {
	return c.sup.Addr()
}

// EnsureRunning makes sure we're connected to a daemon. If we already are, it
// does nothing.
//
// If the daemon's port is known, we first try connecting to it, so that an
// already running daemon is used as-is (and is never shut down by us).
// Otherwise we start one ourselves and connect to that. Each connection
// attempt waits up to ConnectTimeout; we make up to Attempts of them.
//
// A daemon we start that exits or can't tell us its port is fatal straight
// away. If a daemon we started is still running but unreachable after all
// attempts, it is left running: call Shutdown() to clean up.
func (c *Client) EnsureRunning(ctx context.Context) error {
	if c.Connected() {
		return nil
	}

	attempt := 0

	var fatal error

	status := retry.Do(ctx, func() error {
		attempt++

		err := c.connectOrStart(ctx)
		if err != nil && (isFatal(err) || attempt >= c.opts.Attempts) {
			fatal = err

			return nil
		}

		return err
	}, retry.Untils{&retry.UntilLimit{Max: retryLimit}, &retry.UntilNoError{}},
		&backoff.Backoff{
			Min:     retryBackoff,
			Max:     retryBackoff,
			Factor:  1,
			Sleeper: &btime.Sleeper{},
		}, "connect to transfer daemon")

	if fatal != nil {
		return fatal
	}

	if status.Err != nil {
		return status.Err
	}

	if err := ctx.Err(); err != nil && !c.Connected() {
		return err
	}

	return nil
}

func isFatal(err error) bool {
	switch errs.Kind(err) {
	case errs.DaemonStartupFailed, errs.PortDiscoveryFailed:
		return true
	}

	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// connectOrStart makes one attempt at getting a connection.
func (c *Client) connectOrStart(ctx context.Context) error {
	if c.sup.Owned() && c.sup.Exited() {
		return c.sup.StartupError()
	}

	if c.sup.Port() != 0 {
		err := c.dial(ctx)
		if err == nil || c.sup.Owned() {
			return c.ownedDialResult(err)
		}

		c.log.Info("no transfer daemon reachable, starting one", "addr", c.sup.Addr(), "err", err)
	}

	if err := c.sup.Start(ctx); err != nil {
		return err
	}

	return c.ownedDialResult(c.dial(ctx))
}

// ownedDialResult turns a failure to connect to a daemon we started into a
// startup failure if the daemon has since exited.
func (c *Client) ownedDialResult(err error) error {
	if err != nil && c.sup.Owned() && c.sup.Exited() {
		return c.sup.StartupError()
	}

	return err
}

func (c *Client) dial(ctx context.Context) error {
	addr := c.sup.Addr()

	c.log.Debug("connecting to transfer daemon", "addr", addr)

	conn, err := transferd.Dial(ctx, addr, c.opts.ConnectTimeout)
	if err != nil {
		return err
	}

	c.setConn(conn)

	c.log.Info("connected to transfer daemon", "addr", addr, "api", conn.Info().APIVersion,
		"owned", c.sup.Owned())

	return nil
}

// prepare applies our client-side changes to a spec.
func (c *Client) prepare(s spec.Spec) spec.Spec {
	switch c.opts.HTTPFallback {
	case FallbackDisable:
		return s.WithHTTPFallback(false)
	case FallbackEnable:
		return s.WithHTTPFallback(true)
	default:
		return s
	}
}

// Submit makes sure we're connected to a daemon, then asks it to start the
// transfer described by s, returning the ID it gives the transfer. A daemon
// that refuses gives an errs.SubmissionFailed error, which is not retried.
func (c *Client) Submit(ctx context.Context, s spec.Spec) (string, error) {
	if err := c.EnsureRunning(ctx); err != nil {
		return "", err
	}

	data, err := c.prepare(s).Encode()
	if err != nil {
		return "", errs.Wrap(errs.SubmissionFailed, err)
	}

	c.log.Debug("submitting transfer", "spec", string(data))

	resp, err := c.getConn().StartTransfer(ctx, &transferd.TransferRequest{
		TransferType: c.opts.TransferType,
		Config:       &transferd.TransferConfig{},
		TransferSpec: string(data),
	})
	if err != nil {
		return "", errs.Wrap(errs.SubmissionFailed, err)
	}

	switch resp.Status {
	case transferd.StatusFailed:
		return "", errs.New(errs.SubmissionFailed, resp.ErrorDescription())
	case transferd.StatusUnknown:
		desc := resp.ErrorDescription()
		if desc == "" {
			desc = "daemon returned " + resp.Status.String()
		}

		return "", errs.New(errs.SubmissionFailed, desc)
	}

	if resp.TransferID == "" {
		return "", errs.New(errs.SubmissionFailed, "daemon returned no transfer id")
	}

	c.log.Info("transfer submitted", "job", resp.TransferID, "status", resp.Status)

	return resp.TransferID, nil
}

// Wait follows the status of the given transfer until it completes (returning
// nil) or fails (returning an errs.TransferFailed error with the daemon's
// reason). A daemon that doesn't know the transfer gives errs.UnknownJob, and
// the status stream ending before either gives errs.StreamBroken.
//
// There is no timeout; cancel ctx to give up waiting.
func (c *Client) Wait(ctx context.Context, jobID string) error {
	conn := c.getConn()
	if conn == nil {
		return errs.New(errs.ConnectFailed, "not connected")
	}

	mctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := conn.MonitorTransfers(mctx, jobID)
	if err != nil {
		return c.streamError(ctx, err)
	}

	for {
		event, err := stream.Recv()
		if err != nil {
			return c.streamError(ctx, err)
		}

		if c.opts.Progress != nil {
			c.opts.Progress(event)
		}

		c.log.Debug("transfer status", "job", jobID, "status", event.Status, "bytes", event.BytesTransferred)

		switch event.Status {
		case transferd.StatusCompleted:
			c.log.Info("transfer completed", "job", jobID)

			return nil
		case transferd.StatusFailed:
			c.log.Error("transfer failed", "job", jobID, "reason", event.FailureReason())

			return errs.New(errs.TransferFailed, event.FailureReason())
		case transferd.StatusUnknown:
			return errs.New(errs.UnknownJob, jobID)
		}
	}
}

func (c *Client) streamError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if errors.Is(err, io.EOF) {
		return errs.New(errs.StreamBroken, "daemon closed the status stream")
	}

	return errs.Wrap(errs.StreamBroken, err)
}

// SubmitAndWait makes sure a daemon is running, submits the transfer to it and
// waits for the transfer to finish, returning its ID. With the ShutdownAfter
// option, any daemon we started is shut down on the way out, whatever
// happened.
func (c *Client) SubmitAndWait(ctx context.Context, s spec.Spec) (jobID string, err error) {
	if c.opts.ShutdownAfter {
		defer func() {
			if errShut := c.Shutdown(); errShut != nil && err == nil {
				err = errShut
			}
		}()
	}

	jobID, err = c.Submit(ctx, s)
	if err != nil {
		return "", err
	}

	return jobID, c.Wait(ctx, jobID)
}

// Shutdown closes our connection and kills the daemon if we started it. A
// daemon that was already running when we connected is left alone. It is safe
// to call Shutdown repeatedly, and a later EnsureRunning() starts afresh.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	var closeErr error

	if conn != nil {
		closeErr = conn.Close()
	}

	if c.sup.Owned() {
		c.log.Info("shutting down transfer daemon", "pid", c.sup.PID())
	}

	return errors.Join(closeErr, c.sup.Shutdown())
}

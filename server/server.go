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

// package server provides a web server with a REST API for queuing transfers,
// which it runs one at a time through a single transfer client, recording
// them in a history database.

package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/gin-gonic/gin"
	"github.com/inconshreveable/log15"
	"github.com/wtsi-hgi/xferd/client"
	"github.com/wtsi-hgi/xferd/errs"
	"github.com/wtsi-hgi/xferd/history"
	"github.com/wtsi-hgi/xferd/notify"
	"github.com/wtsi-hgi/xferd/spec"
)

const (
	// workerPoolSize is 1 because a client handles one transfer at a time.
	workerPoolSize = 1

	readHeaderTimeout = 10 * time.Second

	ErrStopped = Error("server has been stopped")
)

// Error is the error type of this package's errors.
type Error string

func (e Error) Error() string { return string(e) }

// Server runs queued transfers through a client.Client.
type Server struct {
	router   *gin.Engine
	client   *client.Client
	db       *history.DB
	pool     *workerpool.WorkerPool
	log      log15.Logger
	notifier notify.Notifier

	ctx    context.Context //nolint:containedctx
	cancel context.CancelFunc

	mu      sync.Mutex
	httpSrv *http.Server
	stopped bool
}

// New returns a Server that submits transfers through c, recording them in db.
func New(c *client.Client, db *history.DB, logger log15.Logger) *Server {
	if logger == nil {
		logger = log15.New()
		logger.SetHandler(log15.DiscardHandler())
	}

	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		router: gin.New(),
		client: c,
		db:     db,
		pool:   workerpool.New(workerPoolSize),
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
	}

	s.router.Use(logRequests(logger), gin.Recovery())
	s.addTransferEndpoints()

	return s
}

// logRequests is gin middleware that logs each request.
func logRequests(logger log15.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start),
		)
	}
}

// SetNotifier makes the server send a message about the outcome of every
// transfer.
func (s *Server) SetNotifier(n notify.Notifier) {
	s.notifier = n
}

// Handler returns the http.Handler of our REST API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve serves the REST API on the given listener, blocking until Stop() is
// called.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()

		return ErrStopped
	}

	s.httpSrv = &http.Server{Handler: s.router, ReadHeaderTimeout: readHeaderTimeout}
	srv := s.httpSrv
	s.mu.Unlock()

	s.log.Info("server listening", "addr", lis.Addr().String())

	err := srv.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// Enqueue records a new job for the given spec and queues it to be run. Once
// Stop() has been called it returns ErrStopped instead.
func (s *Server) Enqueue(sp spec.Spec, origin string) (*history.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrStopped
	}

	job, err := history.NewJob(sp, origin)
	if err != nil {
		return nil, err
	}

	if err = s.db.Record(job); err != nil {
		return nil, err
	}

	s.log.Info("transfer queued", "key", job.Key, "origin", origin)

	s.pool.Submit(func() {
		s.run(job, sp)
	})

	return job, nil
}

// run submits the job's spec and waits for the transfer to finish, recording
// progress in the database.
func (s *Server) run(job *history.Job, sp spec.Spec) {
	transferID, err := s.client.Submit(s.ctx, sp)
	if err == nil {
		if errStart := s.db.Started(job.Key, transferID, s.client.Addr()); errStart != nil {
			s.log.Error("failed to record transfer start", "key", job.Key, "err", errStart)
		}

		err = s.client.Wait(s.ctx, transferID)
	}

	if err != nil {
		s.log.Error("transfer failed", "key", job.Key, "transfer", transferID, "err", err)
		s.resetClient(err)
	} else {
		s.log.Info("transfer completed", "key", job.Key, "transfer", transferID)
	}

	if errf := s.db.Finish(job.Key, err); errf != nil {
		s.log.Error("failed to record transfer end", "key", job.Key, "err", errf)
	}

	notify.Outcome(s.notifier, job.Origin, transferID, err)
}

// resetClient drops our connection (and any daemon we started) after errors
// that suggest the daemon is no longer usable, so that the next job starts
// afresh.
func (s *Server) resetClient(err error) {
	switch errs.Kind(err) {
	case errs.TransferFailed, errs.UnknownJob:
		return
	}

	if s.ctx.Err() != nil {
		return
	}

	if errShut := s.client.Shutdown(); errShut != nil {
		s.log.Warn("failed to reset transfer client", "err", errShut)
	}
}

// Stop stops serving, cancels any running transfer, waits for queued jobs to
// be dealt with, then shuts down the client (and so any daemon it started).
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()

		return nil
	}

	s.stopped = true
	srv := s.httpSrv
	s.mu.Unlock()

	var err error

	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	s.cancel()
	s.pool.StopWait()

	return errors.Join(err, s.client.Shutdown())
}

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

package cmd

import (
	"os"

	"github.com/inconshreveable/log15"
	"github.com/wtsi-hgi/xferd/config"
	"github.com/wtsi-hgi/xferd/history"
	"github.com/wtsi-hgi/xferd/notify"
	"github.com/wtsi-hgi/xferd/spec"
	"github.com/wtsi-hgi/xferd/transferd"
)

// log15Writer wraps a log15.Logger to make it conform to io.Writer interface.
type log15Writer struct {
	logger log15.Logger
}

// Write conforms to the io.Writer interface.
func (w *log15Writer) Write(p []byte) (n int, err error) {
	w.logger.Warn(string(p))

	return len(p), nil
}

// newNotifier returns a slack notifier if slack is configured, otherwise nil.
func newNotifier(conf *config.Config) *notify.Slack {
	token, channel := conf.SlackSettings()
	if token == "" || channel == "" {
		return nil
	}

	host, err := os.Hostname()
	if err != nil {
		host = ""
	}

	return notify.New(notify.Config{
		Token:       token,
		Channel:     channel,
		Source:      host,
		ErrorLogger: &log15Writer{logger: appLogger},
	})
}

// openHistory opens the configured history database, returning nil if there
// isn't one.
func openHistory(conf *config.Config) *history.DB {
	path := conf.HistoryDB()
	if path == "" {
		return nil
	}

	db, err := history.Open(path)
	if err != nil {
		die("failed to open history database: %s", err)
	}

	return db
}

// recorder records a transfer we run in the history database and tells slack
// how it went, when those are configured. Failures to record are only warned
// about.
type recorder struct {
	db     *history.DB
	slack  *notify.Slack
	origin string
	key    string
}

func newRecorder(conf *config.Config) *recorder {
	return &recorder{
		db:    openHistory(conf),
		slack: newNotifier(conf),
	}
}

// queued records a new job for the given spec.
func (r *recorder) queued(sp spec.Spec, origin string) {
	r.origin = origin

	if r.db == nil {
		return
	}

	job, err := history.NewJob(sp, origin)
	if err == nil {
		err = r.db.Record(job)
	}

	if err != nil {
		warn("failed to record transfer: %s", err)

		return
	}

	r.key = job.Key
}

// progress records the start of the transfer on its first status update.
func (r *recorder) progress(resp *transferd.TransferResponse, addr string) {
	appLogger.Debug("transfer status", "transfer", resp.TransferID, "status", resp.Status,
		"bytes", resp.BytesTransferred)

	if r.key == "" {
		return
	}

	job, err := r.db.Get(r.key)
	if err != nil || job.TransferID != "" {
		return
	}

	if err = r.db.Started(r.key, resp.TransferID, addr); err != nil {
		warn("failed to record transfer start: %s", err)
	}
}

// finished records the outcome of the transfer.
func (r *recorder) finished(transferID string, err error) {
	if r.key != "" {
		if errf := r.db.Finish(r.key, err); errf != nil {
			warn("failed to record transfer end: %s", errf)
		}
	}

	if r.slack != nil {
		notify.Outcome(r.slack, r.origin, transferID, err)
	}
}

// close waits for notifications to be sent and closes the database.
func (r *recorder) close() {
	if r.slack != nil {
		r.slack.Close()
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			warn("failed to close history database: %s", err)
		}
	}
}

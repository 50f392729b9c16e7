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

package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/wtsi-hgi/xferd/errs"
	"github.com/wtsi-hgi/xferd/spec"
)

func TestHistory(t *testing.T) {
	Convey("Given a history database", t, func() {
		path := filepath.Join(t.TempDir(), "history.db")

		db, err := Open(path)
		So(err, ShouldBeNil)

		defer func() {
			So(db.Close(), ShouldBeNil)
		}()

		s := spec.Spec{"remote_host": "h", "paths": []any{map[string]any{"source": "a"}}}

		job, err := NewJob(s, "spec.json")
		So(err, ShouldBeNil)
		So(job.Status, ShouldEqual, StatusQueued)
		So(job.Size, ShouldBeGreaterThan, 0)
		So(job.Key, ShouldEndWith, ":"+job.Fingerprint)
		So(job.Done(), ShouldBeFalse)
		So(job.Duration(), ShouldEqual, 0)

		So(db.Record(job), ShouldBeNil)

		Convey("You can Get it back", func() {
			got, err := db.Get(job.Key)
			So(err, ShouldBeNil)
			So(got.Origin, ShouldEqual, "spec.json")
			So(got.Fingerprint, ShouldEqual, job.Fingerprint)
			So(got.Queued.Equal(job.Queued), ShouldBeTrue)

			_, err = db.Get("nope")
			So(err, ShouldResemble, Error{ErrNotFound, "nope"})
		})

		Convey("You can record it starting and completing", func() {
			So(db.Started(job.Key, "abc123", "127.0.0.1:33001"), ShouldBeNil)

			got, err := db.Get(job.Key)
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, StatusRunning)
			So(got.TransferID, ShouldEqual, "abc123")
			So(got.Daemon, ShouldEqual, "127.0.0.1:33001")
			So(got.Started.IsZero(), ShouldBeFalse)

			So(db.Finish(job.Key, nil), ShouldBeNil)

			got, err = db.Get(job.Key)
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, StatusCompleted)
			So(got.Done(), ShouldBeTrue)
			So(got.Error, ShouldBeBlank)
			So(got.Duration(), ShouldBeGreaterThanOrEqualTo, 0)
		})

		Convey("You can record it failing", func() {
			So(db.Finish(job.Key, errs.New(errs.TransferFailed, "disk full")), ShouldBeNil)

			got, err := db.Get(job.Key)
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, StatusFailed)
			So(got.Error, ShouldEqual, "transfer failed: disk full")
			So(got.Started.IsZero(), ShouldBeFalse)
		})

		Convey("Updating a missing job fails", func() {
			err := db.Finish("nope", nil)
			So(errors.Is(err, Error{ErrNotFound, "nope"}), ShouldBeTrue)
		})

		Convey("List returns the most recent jobs first", func() {
			time.Sleep(time.Millisecond)

			job2, err := NewJob(s.WithHTTPFallback(false), "other.json")
			So(err, ShouldBeNil)
			So(db.Record(job2), ShouldBeNil)

			jobs, err := db.List(0)
			So(err, ShouldBeNil)
			So(len(jobs), ShouldEqual, 2)
			So(jobs[0].Key, ShouldEqual, job2.Key)
			So(jobs[1].Key, ShouldEqual, job.Key)

			jobs, err = db.List(1)
			So(err, ShouldBeNil)
			So(len(jobs), ShouldEqual, 1)
			So(jobs[0].Origin, ShouldEqual, "other.json")
		})

		Convey("The database can be reopened", func() {
			So(db.Close(), ShouldBeNil)

			db, err = Open(path)
			So(err, ShouldBeNil)

			got, err := db.Get(job.Key)
			So(err, ShouldBeNil)
			So(got.Key, ShouldEqual, job.Key)
		})
	})
}

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

// package history keeps a database of the transfers we've submitted and how
// they ended.

package history

import (
	"fmt"
	"time"

	"github.com/ugorji/go/codec"
	"github.com/wtsi-hgi/xferd/spec"
	bolt "go.etcd.io/bbolt"
)

type Error struct {
	msg string
	key string
}

func (e Error) Error() string {
	if e.key != "" {
		return fmt.Sprintf("%s [%s]", e.msg, e.key)
	}

	return e.msg
}

const (
	ErrNotFound = "job not found"

	jobsBucket  = "jobs"
	dbOpenMode  = 0600
	openTimeout = 5 * time.Second
	keyFormat   = "%020d:%s"
)

// Status of a Job.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job is a record of a transfer.
type Job struct {
	// Key is our unique, time ordered ID for the job.
	Key string

	// Fingerprint identifies the spec that was submitted.
	Fingerprint string

	// Origin says where the spec came from, eg. a file path or URL.
	Origin string

	// Size is the size of the encoded spec in bytes.
	Size int

	// TransferID is the daemon's ID for the transfer, once submitted.
	TransferID string

	// Daemon is the address of the daemon the transfer was submitted to.
	Daemon string

	Status string
	Error  string

	Queued   time.Time
	Started  time.Time
	Finished time.Time
}

// NewJob returns a queued Job for the given spec.
func NewJob(s spec.Spec, origin string) (*Job, error) {
	fp, err := s.Fingerprint()
	if err != nil {
		return nil, err
	}

	data, err := s.Encode()
	if err != nil {
		return nil, err
	}

	now := time.Now()

	return &Job{
		Key:         fmt.Sprintf(keyFormat, now.UnixNano(), fp),
		Fingerprint: fp,
		Origin:      origin,
		Size:        len(data),
		Status:      StatusQueued,
		Queued:      now,
	}, nil
}

// Done returns true if the job has finished, successfully or not.
func (j *Job) Done() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Duration returns how long the job ran for, or has been running for.
func (j *Job) Duration() time.Duration {
	switch {
	case j.Started.IsZero():
		return 0
	case j.Finished.IsZero():
		return time.Since(j.Started)
	default:
		return j.Finished.Sub(j.Started)
	}
}

// DB stores Jobs.
type DB struct {
	db *bolt.DB
	ch codec.Handle
}

// Open opens the database at path, creating it if necessary.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, dbOpenMode, &bolt.Options{
		Timeout:      openTimeout,
		FreelistType: bolt.FreelistMapType,
	})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, errc := tx.CreateBucketIfNotExists([]byte(jobsBucket))

		return errc
	})
	if err != nil {
		db.Close()

		return nil, err
	}

	return &DB{db: db, ch: new(codec.BincHandle)}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) encode(job *Job) ([]byte, error) {
	var encoded []byte

	enc := codec.NewEncoderBytes(&encoded, d.ch)

	return encoded, enc.Encode(job)
}

func (d *DB) decode(v []byte) (*Job, error) {
	dec := codec.NewDecoderBytes(v, d.ch)

	var job *Job

	return job, dec.Decode(&job)
}

// Record stores the given Job, replacing any with the same Key.
func (d *DB) Record(job *Job) error {
	encoded, err := d.encode(job)
	if err != nil {
		return err
	}

	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(jobsBucket)).Put([]byte(job.Key), encoded)
	})
}

// Update calls cb with the Job with the given key, then stores it.
func (d *DB) Update(key string, cb func(*Job)) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(jobsBucket))

		v := b.Get([]byte(key))
		if v == nil {
			return Error{ErrNotFound, key}
		}

		job, err := d.decode(v)
		if err != nil {
			return err
		}

		cb(job)

		encoded, err := d.encode(job)
		if err != nil {
			return err
		}

		return b.Put([]byte(key), encoded)
	})
}

// Started records that the job with the given key was accepted by the daemon
// at addr with the given transfer ID.
func (d *DB) Started(key, transferID, addr string) error {
	return d.Update(key, func(j *Job) {
		j.TransferID = transferID
		j.Daemon = addr
		j.Status = StatusRunning
		j.Started = time.Now()
	})
}

// Finish records the end of the job with the given key: completed if err is
// nil, otherwise failed with err's message.
func (d *DB) Finish(key string, err error) error {
	return d.Update(key, func(j *Job) {
		j.Finished = time.Now()

		if j.Started.IsZero() {
			j.Started = j.Finished
		}

		if err != nil {
			j.Status = StatusFailed
			j.Error = err.Error()

			return
		}

		j.Status = StatusCompleted
	})
}

// Get returns the Job with the given key.
func (d *DB) Get(key string) (*Job, error) {
	var job *Job

	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(jobsBucket)).Get([]byte(key))
		if v == nil {
			return Error{ErrNotFound, key}
		}

		var errd error
		job, errd = d.decode(v)

		return errd
	})

	return job, err
}

// List returns up to limit Jobs, most recent first. A limit of 0 or less
// returns all of them.
func (d *DB) List(limit int) ([]*Job, error) {
	var jobs []*Job

	err := d.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(jobsBucket)).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(jobs) >= limit {
				break
			}

			job, err := d.decode(v)
			if err != nil {
				return err
			}

			jobs = append(jobs, job)
		}

		return nil
	})

	return jobs, err
}

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

package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/wtsi-hgi/xferd/history"
	"github.com/wtsi-hgi/xferd/spec"
)

// ResponseError is returned by our client functions when the server responds
// with an unexpected status.
type ResponseError struct {
	Status int
	Body   string
}

func (e ResponseError) Error() string {
	return fmt.Sprintf("server responded %d: %s", e.Status, e.Body)
}

func newRequest(ctx context.Context) *resty.Request {
	return resty.New().R().SetContext(ctx).ForceContentType("application/json")
}

// Queue is a client call to a Server at the given base URL (eg.
// http://host:port) to queue the given spec for transfer. Returns the queued
// Job.
func Queue(ctx context.Context, url string, sp spec.Spec, origin string) (*history.Job, error) {
	body, err := sp.Encode()
	if err != nil {
		return nil, err
	}

	job := &history.Job{}

	resp, err := newRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam(paramOrigin, origin).
		SetBody(body).
		SetResult(job).
		Post(url + EndPointTransfers)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != http.StatusAccepted {
		return nil, ResponseError{Status: resp.StatusCode(), Body: resp.String()}
	}

	return job, nil
}

// Jobs is a client call to a Server at the given base URL to get its most
// recent jobs. A limit of 0 gets them all.
func Jobs(ctx context.Context, url string, limit int) ([]*history.Job, error) {
	var jobs []*history.Job

	req := newRequest(ctx).SetResult(&jobs)
	if limit > 0 {
		req.SetQueryParam(paramLimit, strconv.Itoa(limit))
	}

	resp, err := req.Get(url + EndPointTransfers)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, ResponseError{Status: resp.StatusCode(), Body: resp.String()}
	}

	return jobs, nil
}

// GetJob is a client call to a Server at the given base URL to get the job
// with the given key.
func GetJob(ctx context.Context, url, key string) (*history.Job, error) {
	job := &history.Job{}

	resp, err := newRequest(ctx).SetResult(job).Get(url + EndPointTransfers + "/" + key)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, ResponseError{Status: resp.StatusCode(), Body: resp.String()}
	}

	return job, nil
}

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

// package rest fetches transfer specs from the REST APIs of file transfer
// services, which hand them out in response to authenticated requests.

package rest

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/wtsi-hgi/xferd/spec"
)

const (
	// DefaultTimeout bounds each request.
	DefaultTimeout = 10 * time.Second

	mimeJSON = "application/json"
)

// Error is returned when an API responds with a non-2xx status.
type Error struct {
	Status int
	Body   string
}

func (e Error) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Body)
}

// PathError is returned when the Pick path doesn't lead to a document.
type PathError struct {
	Msg  string
	Path string
}

func (e PathError) Error() string {
	return fmt.Sprintf("%s: %s", e.Msg, e.Path)
}

const ErrBadPick = "response has nothing at path"

// Request describes a call to an API that returns a transfer spec.
type Request struct {
	URL string

	// Method defaults to GET, or POST if there's a Body.
	Method string

	// Body is sent as JSON.
	Body any

	Headers map[string]string

	// Username and Password are used for basic auth, if Username is set.
	Username string
	Password string

	// Token is used for bearer auth, if set.
	Token string

	// Insecure skips verification of the server's certificate.
	Insecure bool

	Timeout time.Duration

	// Pick is a dot-separated path to the transfer spec within the response,
	// eg. "transfer_specs.0.transfer_spec". Blank means the whole response.
	Pick string
}

func (r Request) method() string {
	switch {
	case r.Method != "":
		return strings.ToUpper(r.Method)
	case r.Body != nil:
		return http.MethodPost
	default:
		return http.MethodGet
	}
}

// Fetch makes the request and returns the transfer spec in the response.
func Fetch(ctx context.Context, req Request) (spec.Spec, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New().SetTimeout(timeout)

	if req.Insecure {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec
	}

	r := client.R().SetContext(ctx).
		SetHeader("Accept", mimeJSON).
		SetHeaders(req.Headers)

	if req.Body != nil {
		r.SetHeader("Content-Type", mimeJSON).SetBody(req.Body)
	}

	if req.Username != "" {
		r.SetBasicAuth(req.Username, req.Password)
	}

	if req.Token != "" {
		r.SetAuthToken(req.Token)
	}

	resp, err := r.Execute(req.method(), req.URL)
	if err != nil {
		return nil, err
	}

	if resp.IsError() || resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return nil, Error{Status: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}

	s, err := spec.Parse(resp.Body())
	if err != nil {
		return nil, err
	}

	return pick(s, req.Pick)
}

// pick descends through maps and lists by the given dot path.
func pick(s spec.Spec, path string) (spec.Spec, error) {
	if path == "" {
		return s, nil
	}

	var cur any = map[string]any(s)

	for _, key := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[key]
			if !ok {
				return nil, PathError{Msg: ErrBadPick, Path: path}
			}

			cur = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(v) {
				return nil, PathError{Msg: ErrBadPick, Path: path}
			}

			cur = v[i]
		default:
			return nil, PathError{Msg: ErrBadPick, Path: path}
		}
	}

	m, ok := cur.(map[string]any)
	if !ok {
		return nil, PathError{Msg: ErrBadPick, Path: path}
	}

	return spec.Spec(m), nil
}

// BasicAuthorization returns the value of an Authorization header for basic
// auth with the given credentials, for specs that need to carry one.
func BasicAuthorization(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}

// BearerAuthorization returns the value of an Authorization header for the
// given token.
func BearerAuthorization(token string) string {
	return "Bearer " + token
}

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

package errs

import (
	"errors"
	"fmt"
)

// Messages identifying each kind of failure a transfer can end with. A
// TransferError's Msg is always one of these.
const (
	DaemonStartupFailed = "transfer daemon startup failed"
	ConnectFailed       = "could not connect to transfer daemon"
	PortDiscoveryFailed = "could not discover transfer daemon port"
	SubmissionFailed    = "transfer daemon rejected transfer"
	TransferFailed      = "transfer failed"
	UnknownJob          = "transfer daemon does not know transfer"
	StreamBroken        = "transfer status stream ended early"
)

// TransferError is the error returned by everything involved in getting a
// transfer done. Msg says what kind of failure it was and Detail gives the
// human-readable reason, usually taken from the daemon itself.
type TransferError struct {
	Msg    string
	Detail string
	Err    error
}

// New returns a TransferError of the given kind with the given detail.
func New(msg, detail string) TransferError {
	return TransferError{Msg: msg, Detail: detail}
}

// Wrap returns a TransferError of the given kind that wraps err.
func Wrap(msg string, err error) TransferError {
	return TransferError{Msg: msg, Detail: err.Error(), Err: err}
}

func (e TransferError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Msg, e.Detail)
	}

	return e.Msg
}

func (e TransferError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is() match any TransferError of the same kind, regardless of
// detail, so that errors.Is(err, errs.New(errs.TransferFailed, "")) works.
func (e TransferError) Is(err error) bool {
	var te TransferError
	if errors.As(err, &te) {
		return te.Msg == e.Msg
	}

	return false
}

// Kind returns the Msg of the TransferError in err's chain, or blank if there
// isn't one.
func Kind(err error) string {
	var te TransferError
	if errors.As(err, &te) {
		return te.Msg
	}

	return ""
}

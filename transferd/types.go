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

// package transferd is a client (and server skeleton) for the control
// interface of a transfer daemon: a gRPC service that accepts transfer specs
// and streams back the status of the transfers they start.

package transferd

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// TransferStatus is the state of a transfer as reported by the daemon.
type TransferStatus int32

const (
	// StatusUnknown is what the daemon reports for a transfer ID it does not
	// recognise.
	StatusUnknown TransferStatus = iota
	StatusQueued
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusCanceled
	StatusPaused
	StatusOrphaned
)

var statusNames = map[TransferStatus]string{ //nolint:gochecknoglobals
	StatusUnknown:   "UNKNOWN_STATUS",
	StatusQueued:    "QUEUED",
	StatusRunning:   "RUNNING",
	StatusCompleted: "COMPLETED",
	StatusFailed:    "FAILED",
	StatusCanceled:  "CANCELED",
	StatusPaused:    "PAUSED",
	StatusOrphaned:  "ORPHANED",
}

func (s TransferStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return strconv.Itoa(int(s))
}

// Terminal is true for the statuses that end monitoring of a transfer.
func (s TransferStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus returns the TransferStatus with the given name. "SUBMITTED" is
// accepted as an alias of QUEUED.
func ParseStatus(name string) (TransferStatus, error) {
	if name == "SUBMITTED" {
		return StatusQueued, nil
	}

	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}

	return StatusUnknown, fmt.Errorf("unknown transfer status %q", name)
}

// MarshalJSON encodes the status by name.
func (s TransferStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts either a status name or its number.
func (s *TransferStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		var n int32
		if errn := json.Unmarshal(data, &n); errn != nil {
			return err
		}

		*s = TransferStatus(n)

		return nil
	}

	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}

// TransferType says how the daemon should move data for a transfer.
type TransferType int32

const (
	FileRegular TransferType = iota
	StreamToFileUpload
	FileToStreamDownload
)

var typeNames = map[TransferType]string{ //nolint:gochecknoglobals
	FileRegular:          "FILE_REGULAR",
	StreamToFileUpload:   "STREAM_TO_FILE_UPLOAD",
	FileToStreamDownload: "FILE_TO_STREAM_DOWNLOAD",
}

func (t TransferType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}

	return strconv.Itoa(int(t))
}

// ParseTransferType returns the TransferType with the given name.
func ParseTransferType(name string) (TransferType, error) {
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}

	return FileRegular, fmt.Errorf("unknown transfer type %q", name)
}

// MarshalJSON encodes the type by name.
func (t TransferType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a type name.
func (t *TransferType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	parsed, err := ParseTransferType(name)
	if err != nil {
		return err
	}

	*t = parsed

	return nil
}

// Error is the error payload of daemon responses.
type Error struct {
	Code        int32  `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
}

// TransferConfig carries per-transfer daemon settings. The zero value asks for
// the daemon defaults.
type TransferConfig struct {
	LogLevel int32 `json:"logLevel,omitempty"`
}

// TransferRequest asks the daemon to start a transfer described by a JSON
// encoded transfer spec.
type TransferRequest struct {
	TransferType TransferType    `json:"transferType"`
	Config       *TransferConfig `json:"config,omitempty"`
	TransferSpec string          `json:"transferSpec"`
}

// StartTransferResponse is the daemon's answer to a TransferRequest.
type StartTransferResponse struct {
	TransferID string         `json:"transferId"`
	Status     TransferStatus `json:"status"`
	Error      *Error         `json:"error,omitempty"`
}

// ErrorDescription returns the description of any error in the response.
func (r *StartTransferResponse) ErrorDescription() string {
	if r.Error == nil {
		return ""
	}

	return r.Error.Description
}

// RegistrationFilter selects the transfers a status stream reports on.
type RegistrationFilter struct {
	TransferID []string `json:"transferId,omitempty"`
}

// RegistrationRequest subscribes to the status of transfers.
type RegistrationRequest struct {
	Filters []*RegistrationFilter `json:"filters,omitempty"`
}

// TransferResponse is one status update for a transfer.
type TransferResponse struct {
	TransferID       string         `json:"transferId"`
	Status           TransferStatus `json:"status"`
	Message          string         `json:"message,omitempty"`
	Error            *Error         `json:"error,omitempty"`
	BytesTransferred uint64         `json:"bytesTransferred,omitempty"`
}

// FailureReason returns the best description of why a transfer failed: its
// message, or failing that its error description.
func (r *TransferResponse) FailureReason() string {
	if r.Message != "" {
		return r.Message
	}

	if r.Error != nil {
		return r.Error.Description
	}

	return ""
}

// InstanceInfoRequest asks the daemon to describe itself.
type InstanceInfoRequest struct{}

// InstanceInfoResponse describes a running daemon.
type InstanceInfoResponse struct {
	APIVersion string `json:"apiVersion"`
}

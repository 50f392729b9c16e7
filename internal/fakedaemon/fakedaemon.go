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

// package fakedaemon provides a transfer daemon for tests. It speaks the real
// control protocol, either in-process on a listener of your choosing, or as a
// child process (see Main) that behaves like the real daemon binary: it reads
// a --config file, logs JSON lines to <log_directory>/<exe name>.log and
// reports the address it is listening on in its last log line.

package fakedaemon

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/wtsi-hgi/xferd/transferd"
	"google.golang.org/grpc"
)

// DefaultStatuses is the status sequence a transfer goes through by default.
var DefaultStatuses = []transferd.TransferStatus{ //nolint:gochecknoglobals
	transferd.StatusQueued,
	transferd.StatusRunning,
	transferd.StatusRunning,
	transferd.StatusCompleted,
}

// APIVersion is what the fake daemon reports from GetInfo.
const APIVersion = "1.0.0-fake"

// Behaviour controls how a Daemon responds.
type Behaviour struct {
	// Statuses are streamed, in order, for every transfer. Defaults to
	// DefaultStatuses.
	Statuses []transferd.TransferStatus

	// Message accompanies any FAILED status.
	Message string

	// Reject, if set, makes StartTransfer fail with this description.
	Reject string

	// JobID is the ID given to submitted transfers; defaults to job-N.
	JobID string

	// Trailing extra RUNNING events are sent after Statuses, which a well
	// behaved client should never read.
	Trailing int

	// Break ends the status stream after Statuses, instead of leaving it open
	// until the client goes away.
	Break bool

	// SubmitUnknown makes StartTransfer answer with a job ID but
	// UNKNOWN_STATUS.
	SubmitUnknown bool

	// TruncateLog makes a daemon process overwrite its log file instead of
	// appending to it.
	TruncateLog bool
}

func (b Behaviour) statuses() []transferd.TransferStatus {
	if len(b.Statuses) == 0 {
		return DefaultStatuses
	}

	return b.Statuses
}

// Daemon implements transferd.TransferServiceServer.
type Daemon struct {
	b Behaviour

	mu    sync.Mutex
	specs map[string]string
	order []string
	sent  int
}

// New returns a Daemon that behaves as described.
func New(b Behaviour) *Daemon {
	return &Daemon{b: b, specs: make(map[string]string)}
}

// GetInfo implements the liveness probe.
func (d *Daemon) GetInfo(context.Context, *transferd.InstanceInfoRequest) (*transferd.InstanceInfoResponse, error) {
	return &transferd.InstanceInfoResponse{APIVersion: APIVersion}, nil
}

// StartTransfer records the spec and returns a job ID, unless we were told to
// reject transfers.
func (d *Daemon) StartTransfer(_ context.Context,
	req *transferd.TransferRequest) (*transferd.StartTransferResponse, error) {
	if d.b.Reject != "" {
		return &transferd.StartTransferResponse{
			Status: transferd.StatusFailed,
			Error:  &transferd.Error{Code: 1, Description: d.b.Reject},
		}, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.b.JobID
	if id == "" {
		id = fmt.Sprintf("job-%d", len(d.order)+1)
	}

	d.specs[id] = req.TransferSpec
	d.order = append(d.order, id)

	status := transferd.StatusQueued
	if d.b.SubmitUnknown {
		status = transferd.StatusUnknown
	}

	return &transferd.StartTransferResponse{TransferID: id, Status: status}, nil
}

// MonitorTransfers streams our scripted statuses for each filtered transfer we
// know about, and a single UNKNOWN_STATUS for ones we don't.
func (d *Daemon) MonitorTransfers(req *transferd.RegistrationRequest, stream transferd.MonitorTransfersServer) error {
	for _, id := range filterIDs(req) {
		if err := d.stream(id, stream); err != nil {
			return err
		}
	}

	if d.b.Break {
		return nil
	}

	<-stream.Context().Done()

	return nil
}

func filterIDs(req *transferd.RegistrationRequest) []string {
	var ids []string

	for _, f := range req.Filters {
		if f != nil {
			ids = append(ids, f.TransferID...)
		}
	}

	return ids
}

func (d *Daemon) stream(id string, stream transferd.MonitorTransfersServer) error {
	if !d.known(id) {
		return d.send(stream, &transferd.TransferResponse{TransferID: id, Status: transferd.StatusUnknown})
	}

	for _, status := range d.b.statuses() {
		resp := &transferd.TransferResponse{TransferID: id, Status: status}
		if status == transferd.StatusFailed {
			resp.Message = d.b.Message
		}

		if err := d.send(stream, resp); err != nil {
			return err
		}
	}

	for range d.b.Trailing {
		if err := d.send(stream, &transferd.TransferResponse{TransferID: id, Status: transferd.StatusRunning}); err != nil {
			return err
		}
	}

	return nil
}

func (d *Daemon) known(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.specs[id]

	return ok
}

func (d *Daemon) send(stream transferd.MonitorTransfersServer, resp *transferd.TransferResponse) error {
	if err := stream.Send(resp); err != nil {
		return err
	}

	d.mu.Lock()
	d.sent++
	d.mu.Unlock()

	return nil
}

// Specs returns the transfer specs submitted so far, in submission order.
func (d *Daemon) Specs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	specs := make([]string, len(d.order))
	for i, id := range d.order {
		specs[i] = d.specs[id]
	}

	return specs
}

// Sent returns how many status events have been sent to clients.
func (d *Daemon) Sent() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.sent
}

// Server is a Daemon being served over gRPC.
type Server struct {
	*Daemon
	gs  *grpc.Server
	lis net.Listener
}

// Serve serves d on lis in the background.
func Serve(d *Daemon, lis net.Listener) *Server {
	gs := grpc.NewServer(transferd.ServerOption())
	transferd.RegisterTransferServiceServer(gs, d)

	go gs.Serve(lis) //nolint:errcheck

	return &Server{Daemon: d, gs: gs, lis: lis}
}

// Start serves a new Daemon with the given behaviour on a random localhost
// port.
func Start(b Behaviour) (*Server, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	return Serve(New(b), lis), nil
}

// Addr returns the host:port the server is listening on.
func (s *Server) Addr() string {
	return s.lis.Addr().String()
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.lis.Addr().(*net.TCPAddr).Port //nolint:forcetypeassert
}

// Stop stops the server, cutting off any open streams.
func (s *Server) Stop() {
	s.gs.Stop()
}

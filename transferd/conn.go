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

package transferd

import (
	"context"
	"time"

	"github.com/wtsi-hgi/xferd/errs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DefaultConnectTimeout is how long Dial waits for a daemon to answer its
// liveness probe when not given a timeout.
const DefaultConnectTimeout = 5 * time.Second

// Conn is a verified connection to a transfer daemon's control interface.
type Conn struct {
	cc   *grpc.ClientConn
	addr string
	info *InstanceInfoResponse
}

// Dial connects to the daemon listening on address (host:port) and confirms it
// is alive by asking it for its info, waiting up to timeout for it to answer.
// Any failure is returned as an errs.ConnectFailed TransferError.
func Dial(ctx context.Context, address string, timeout time.Duration) (*Conn, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	cc, err := grpc.NewClient("passthrough:///"+address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(callOption()),
	)
	if err != nil {
		return nil, errs.Wrap(errs.ConnectFailed, err)
	}

	c := &Conn{cc: cc, addr: address}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	info, err := c.getInfo(probeCtx, grpc.WaitForReady(true))
	if err != nil {
		cc.Close()

		return nil, errs.Wrap(errs.ConnectFailed, err)
	}

	c.info = info

	return c, nil
}

func (c *Conn) getInfo(ctx context.Context, opts ...grpc.CallOption) (*InstanceInfoResponse, error) {
	out := new(InstanceInfoResponse)

	err := c.cc.Invoke(ctx, fullMethodGetInfo, &InstanceInfoRequest{}, out, opts...)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Addr returns the address this Conn was dialled to.
func (c *Conn) Addr() string {
	return c.addr
}

// Info returns what the daemon said about itself when we connected.
func (c *Conn) Info() *InstanceInfoResponse {
	return c.info
}

// Ping asks the daemon for its info again, returning an error if it no longer
// answers.
func (c *Conn) Ping(ctx context.Context) error {
	_, err := c.getInfo(ctx)

	return err
}

// StartTransfer asks the daemon to start the given transfer.
func (c *Conn) StartTransfer(ctx context.Context, req *TransferRequest) (*StartTransferResponse, error) {
	out := new(StartTransferResponse)

	if err := c.cc.Invoke(ctx, fullMethodStartTransfer, req, out); err != nil {
		return nil, err
	}

	return out, nil
}

// StatusStream is a feed of status updates from MonitorTransfers.
type StatusStream interface {
	Recv() (*TransferResponse, error)
}

type statusStream struct {
	grpc.ClientStream
}

func (s *statusStream) Recv() (*TransferResponse, error) {
	m := new(TransferResponse)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}

	return m, nil
}

// MonitorTransfers subscribes to status updates for the given transfer IDs.
// The stream ends when ctx is cancelled, the daemon goes away, or (for some
// daemons) never; callers stop reading when they see what they want and cancel
// ctx.
func (c *Conn) MonitorTransfers(ctx context.Context, ids ...string) (StatusStream, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], fullMethodMonitor)
	if err != nil {
		return nil, err
	}

	req := &RegistrationRequest{Filters: []*RegistrationFilter{{TransferID: ids}}}

	if err = stream.SendMsg(req); err != nil {
		return nil, err
	}

	if err = stream.CloseSend(); err != nil {
		return nil, err
	}

	return &statusStream{stream}, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.cc.Close()
}

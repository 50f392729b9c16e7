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

	"google.golang.org/grpc"
)

const (
	// ServiceName is the fully qualified gRPC name of the transfer service.
	ServiceName = "transferd.api.TransferService"

	methodGetInfo           = "GetInfo"
	methodStartTransfer     = "StartTransfer"
	methodMonitorTransfers  = "MonitorTransfers"
	fullMethodGetInfo       = "/" + ServiceName + "/" + methodGetInfo
	fullMethodStartTransfer = "/" + ServiceName + "/" + methodStartTransfer
	fullMethodMonitor       = "/" + ServiceName + "/" + methodMonitorTransfers
)

// TransferServiceServer is the server side of the transfer service, as
// implemented by a transfer daemon.
type TransferServiceServer interface {
	GetInfo(context.Context, *InstanceInfoRequest) (*InstanceInfoResponse, error)
	StartTransfer(context.Context, *TransferRequest) (*StartTransferResponse, error)
	MonitorTransfers(*RegistrationRequest, MonitorTransfersServer) error
}

// MonitorTransfersServer is the stream a server sends status updates on.
type MonitorTransfersServer interface {
	Send(*TransferResponse) error
	grpc.ServerStream
}

type monitorTransfersServer struct {
	grpc.ServerStream
}

func (s *monitorTransfersServer) Send(m *TransferResponse) error {
	return s.ServerStream.SendMsg(m)
}

// RegisterTransferServiceServer registers impl with s, which should have been
// created with ServerOption().
func RegisterTransferServiceServer(s grpc.ServiceRegistrar, impl TransferServiceServer) {
	s.RegisterService(&serviceDesc, impl)
}

var serviceDesc = grpc.ServiceDesc{ //nolint:gochecknoglobals
	ServiceName: ServiceName,
	HandlerType: (*TransferServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodGetInfo, Handler: getInfoHandler},
		{MethodName: methodStartTransfer, Handler: startTransferHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    methodMonitorTransfers,
			Handler:       monitorTransfersHandler,
			ServerStreams: true,
		},
	},
	Metadata: "transferd.proto",
}

func getInfoHandler(srv any, ctx context.Context, dec func(any) error,
	interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(InstanceInfoRequest)
	if err := dec(in); err != nil {
		return nil, err
	}

	impl := srv.(TransferServiceServer) //nolint:forcetypeassert

	if interceptor == nil {
		return impl.GetInfo(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethodGetInfo}

	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return impl.GetInfo(ctx, req.(*InstanceInfoRequest)) //nolint:forcetypeassert
	})
}

func startTransferHandler(srv any, ctx context.Context, dec func(any) error,
	interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(TransferRequest)
	if err := dec(in); err != nil {
		return nil, err
	}

	impl := srv.(TransferServiceServer) //nolint:forcetypeassert

	if interceptor == nil {
		return impl.StartTransfer(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethodStartTransfer}

	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return impl.StartTransfer(ctx, req.(*TransferRequest)) //nolint:forcetypeassert
	})
}

func monitorTransfersHandler(srv any, stream grpc.ServerStream) error {
	in := new(RegistrationRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	return srv.(TransferServiceServer).MonitorTransfers(in, &monitorTransfersServer{stream}) //nolint:forcetypeassert
}

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

package transferd_test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/wtsi-hgi/xferd/errs"
	"github.com/wtsi-hgi/xferd/internal/fakedaemon"
	"github.com/wtsi-hgi/xferd/transferd"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

func TestStatus(t *testing.T) {
	Convey("Statuses have names, and only COMPLETED and FAILED are terminal", t, func() {
		So(transferd.StatusUnknown.String(), ShouldEqual, "UNKNOWN_STATUS")
		So(transferd.StatusCompleted.String(), ShouldEqual, "COMPLETED")
		So(transferd.TransferStatus(99).String(), ShouldEqual, "99")

		So(transferd.StatusCompleted.Terminal(), ShouldBeTrue)
		So(transferd.StatusFailed.Terminal(), ShouldBeTrue)
		So(transferd.StatusRunning.Terminal(), ShouldBeFalse)
		So(transferd.StatusCanceled.Terminal(), ShouldBeFalse)
		So(transferd.StatusUnknown.Terminal(), ShouldBeFalse)
	})

	Convey("SUBMITTED is an alias of QUEUED, and bad names are rejected", t, func() {
		s, err := transferd.ParseStatus("SUBMITTED")
		So(err, ShouldBeNil)
		So(s, ShouldEqual, transferd.StatusQueued)

		_, err = transferd.ParseStatus("DONE")
		So(err, ShouldNotBeNil)
	})

	Convey("Statuses decode from names or numbers", t, func() {
		var resp transferd.TransferResponse

		So(json.Unmarshal([]byte(`{"transferId":"a","status":"FAILED","message":"disk full"}`), &resp), ShouldBeNil)
		So(resp.Status, ShouldEqual, transferd.StatusFailed)
		So(resp.FailureReason(), ShouldEqual, "disk full")

		So(json.Unmarshal([]byte(`{"transferId":"a","status":3}`), &resp), ShouldBeNil)
		So(resp.Status, ShouldEqual, transferd.StatusCompleted)

		resp = transferd.TransferResponse{Error: &transferd.Error{Description: "no space"}}
		So(resp.FailureReason(), ShouldEqual, "no space")
	})

	Convey("Transfer requests encode their type by name", t, func() {
		data, err := json.Marshal(&transferd.TransferRequest{TransferSpec: "{}"})
		So(err, ShouldBeNil)
		So(string(data), ShouldEqual, `{"transferType":"FILE_REGULAR","transferSpec":"{}"}`)

		tt, err := transferd.ParseTransferType("STREAM_TO_FILE_UPLOAD")
		So(err, ShouldBeNil)
		So(tt, ShouldEqual, transferd.StreamToFileUpload)
	})
}

func TestCodec(t *testing.T) {
	Convey("Given the transferd.proto message descriptors", t, func() {
		file, err := protodesc.NewFile(transferdProto(), nil)
		So(err, ShouldBeNil)

		codec := transferd.Codec{}
		So(codec.Name(), ShouldEqual, "proto")

		Convey("Transfer requests decode with the protobuf runtime", func() {
			data, err := codec.Marshal(&transferd.TransferRequest{
				TransferType: transferd.StreamToFileUpload,
				Config:       &transferd.TransferConfig{LogLevel: 2},
				TransferSpec: `{"direction":"send"}`,
			})
			So(err, ShouldBeNil)

			md := file.Messages().ByName("TransferRequest")
			msg := dynamicpb.NewMessage(md)
			So(proto.Unmarshal(data, msg), ShouldBeNil)

			So(msg.Get(md.Fields().ByName("transferType")).Int(), ShouldEqual, int64(1))
			So(msg.Get(md.Fields().ByName("transferSpec")).String(), ShouldEqual, `{"direction":"send"}`)

			config := msg.Get(md.Fields().ByName("config")).Message()
			So(config.Get(config.Descriptor().Fields().ByName("logLevel")).Int(), ShouldEqual, int64(2))
		})

		Convey("Registration requests carry their transfer ids", func() {
			data, err := codec.Marshal(&transferd.RegistrationRequest{
				Filters: []*transferd.RegistrationFilter{{TransferID: []string{"a", "b"}}},
			})
			So(err, ShouldBeNil)

			md := file.Messages().ByName("RegistrationRequest")
			msg := dynamicpb.NewMessage(md)
			So(proto.Unmarshal(data, msg), ShouldBeNil)

			filters := msg.Get(md.Fields().ByName("filters")).List()
			So(filters.Len(), ShouldEqual, 1)

			filter := filters.Get(0).Message()
			ids := filter.Get(filter.Descriptor().Fields().ByName("transferId")).List()
			So(ids.Len(), ShouldEqual, 2)
			So(ids.Get(1).String(), ShouldEqual, "b")
		})

		Convey("Transfer responses from the protobuf runtime decode, skipping unknown fields", func() {
			md := file.Messages().ByName("TransferResponse")
			msg := dynamicpb.NewMessage(md)
			fields := md.Fields()

			msg.Set(fields.ByName("transferType"), protoreflect.ValueOfInt32(2))
			msg.Set(fields.ByName("transferId"), protoreflect.ValueOfString("abc123"))
			msg.Set(fields.ByName("status"), protoreflect.ValueOfInt32(int32(transferd.StatusFailed)))
			msg.Set(fields.ByName("message"), protoreflect.ValueOfString("disk full"))

			info := msg.Mutable(fields.ByName("transferInfo")).Message()
			info.Set(info.Descriptor().Fields().ByName("bytesTransferred"), protoreflect.ValueOfUint64(1024))

			perr := msg.Mutable(fields.ByName("error")).Message()
			perr.Set(perr.Descriptor().Fields().ByName("code"), protoreflect.ValueOfInt32(-1))
			perr.Set(perr.Descriptor().Fields().ByName("description"), protoreflect.ValueOfString("no space"))

			data, err := proto.Marshal(msg)
			So(err, ShouldBeNil)

			var resp transferd.TransferResponse
			So(codec.Unmarshal(data, &resp), ShouldBeNil)
			So(resp.TransferID, ShouldEqual, "abc123")
			So(resp.Status, ShouldEqual, transferd.StatusFailed)
			So(resp.Message, ShouldEqual, "disk full")
			So(resp.BytesTransferred, ShouldEqual, uint64(1024))
			So(resp.Error, ShouldResemble, &transferd.Error{Code: -1, Description: "no space"})
		})

		Convey("Start transfer responses survive a round trip", func() {
			in := &transferd.StartTransferResponse{
				TransferID: "abc123",
				Status:     transferd.StatusQueued,
				Error:      &transferd.Error{Description: "none"},
			}

			data, err := codec.Marshal(in)
			So(err, ShouldBeNil)

			md := file.Messages().ByName("StartTransferResponse")
			msg := dynamicpb.NewMessage(md)
			So(proto.Unmarshal(data, msg), ShouldBeNil)
			So(msg.Get(md.Fields().ByName("status")).Int(), ShouldEqual, int64(transferd.StatusQueued))

			out := new(transferd.StartTransferResponse)
			So(codec.Unmarshal(data, out), ShouldBeNil)
			So(out, ShouldResemble, in)
		})

		Convey("Other types are rejected", func() {
			_, err := codec.Marshal("nope")
			So(err, ShouldNotBeNil)

			So(codec.Unmarshal([]byte{0x0a, 0x01, 0x61}, new(string)), ShouldNotBeNil)
		})

		Convey("Truncated messages are rejected", func() {
			So(codec.Unmarshal([]byte{0x12, 0x05, 0x61}, new(transferd.TransferResponse)), ShouldNotBeNil)
		})
	})
}

func transferdProto() *descriptorpb.FileDescriptorProto {
	msg := func(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
		return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
	}

	field := func(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type,
		repeated bool, typeName string) *descriptorpb.FieldDescriptorProto {
		label := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
		if repeated {
			label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
		}

		f := &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(name),
			Number: proto.Int32(num),
			Type:   typ.Enum(),
			Label:  label.Enum(),
		}

		if typeName != "" {
			f.TypeName = proto.String(".transferd.api." + typeName)
		}

		return f
	}

	const (
		str   = descriptorpb.FieldDescriptorProto_TYPE_STRING
		i32   = descriptorpb.FieldDescriptorProto_TYPE_INT32
		u64   = descriptorpb.FieldDescriptorProto_TYPE_UINT64
		embed = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	)

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("transferd.proto"),
		Package: proto.String("transferd.api"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			msg("Error", field("code", 1, i32, false, ""), field("description", 2, str, false, "")),
			msg("TransferConfig", field("logLevel", 1, i32, false, "")),
			msg("TransferRequest",
				field("transferType", 1, i32, false, ""),
				field("config", 2, embed, false, "TransferConfig"),
				field("transferSpec", 3, str, false, "")),
			msg("StartTransferResponse",
				field("transferId", 1, str, false, ""),
				field("status", 2, i32, false, ""),
				field("error", 3, embed, false, "Error")),
			msg("RegistrationFilter",
				field("operator", 1, i32, false, ""),
				field("transferId", 4, str, true, "")),
			msg("RegistrationRequest", field("filters", 1, embed, true, "RegistrationFilter")),
			msg("TransferInfo", field("bytesTransferred", 1, u64, false, "")),
			msg("TransferResponse",
				field("transferType", 1, i32, false, ""),
				field("transferId", 2, str, false, ""),
				field("status", 3, i32, false, ""),
				field("transferInfo", 4, embed, false, "TransferInfo"),
				field("error", 6, embed, false, "Error"),
				field("message", 7, str, false, "")),
		},
	}
}

func TestConn(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running daemon", t, func() {
		srv, err := fakedaemon.Start(fakedaemon.Behaviour{JobID: "abc123"})
		So(err, ShouldBeNil)
		defer srv.Stop()

		Convey("You can Dial it and see its info", func() {
			conn, err := transferd.Dial(ctx, srv.Addr(), time.Second)
			So(err, ShouldBeNil)
			defer conn.Close()

			So(conn.Addr(), ShouldEqual, srv.Addr())
			So(conn.Info().APIVersion, ShouldEqual, fakedaemon.APIVersion)
			So(conn.Ping(ctx), ShouldBeNil)

			Convey("Then start a transfer and monitor it", func() {
				resp, err := conn.StartTransfer(ctx, &transferd.TransferRequest{
					TransferType: transferd.FileRegular,
					Config:       &transferd.TransferConfig{},
					TransferSpec: `{"direction":"send"}`,
				})
				So(err, ShouldBeNil)
				So(resp.TransferID, ShouldEqual, "abc123")
				So(resp.Status, ShouldEqual, transferd.StatusQueued)
				So(srv.Specs(), ShouldResemble, []string{`{"direction":"send"}`})

				mctx, cancel := context.WithCancel(ctx)
				defer cancel()

				stream, err := conn.MonitorTransfers(mctx, resp.TransferID)
				So(err, ShouldBeNil)

				var statuses []transferd.TransferStatus

				for {
					event, errr := stream.Recv()
					So(errr, ShouldBeNil)
					So(event.TransferID, ShouldEqual, "abc123")

					statuses = append(statuses, event.Status)

					if event.Status.Terminal() {
						break
					}
				}

				So(statuses, ShouldResemble, fakedaemon.DefaultStatuses)
			})

			Convey("Monitoring an unknown transfer gives UNKNOWN_STATUS", func() {
				mctx, cancel := context.WithCancel(ctx)
				defer cancel()

				stream, err := conn.MonitorTransfers(mctx, "nope")
				So(err, ShouldBeNil)

				event, err := stream.Recv()
				So(err, ShouldBeNil)
				So(event.Status, ShouldEqual, transferd.StatusUnknown)
			})
		})
	})

	Convey("Dialling where nothing is listening gives ConnectFailed after the timeout", t, func() {
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		So(err, ShouldBeNil)

		addr := lis.Addr().String()
		So(lis.Close(), ShouldBeNil)

		start := time.Now()
		_, err = transferd.Dial(ctx, addr, 200*time.Millisecond)
		So(err, ShouldNotBeNil)
		So(errs.Kind(err), ShouldEqual, errs.ConnectFailed)
		So(time.Since(start), ShouldBeLessThan, 5*time.Second)
	})
}

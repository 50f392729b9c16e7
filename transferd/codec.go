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
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protowire"
)

// codecName makes our messages travel as "application/grpc+proto", the same
// as generated protobuf code.
const codecName = "proto"

// Field numbers of the messages in transferd.proto.
const (
	fieldInfoAPIVersion protowire.Number = 1

	fieldErrorCode        protowire.Number = 1
	fieldErrorDescription protowire.Number = 2

	fieldConfigLogLevel protowire.Number = 1

	fieldRequestType   protowire.Number = 1
	fieldRequestConfig protowire.Number = 2
	fieldRequestSpec   protowire.Number = 3

	fieldStartID     protowire.Number = 1
	fieldStartStatus protowire.Number = 2
	fieldStartError  protowire.Number = 3

	fieldFilterTransferID protowire.Number = 4

	fieldRegistrationFilters protowire.Number = 1

	fieldResponseID      protowire.Number = 2
	fieldResponseStatus  protowire.Number = 3
	fieldResponseInfo    protowire.Number = 4
	fieldResponseError   protowire.Number = 6
	fieldResponseMessage protowire.Number = 7

	fieldInfoBytesTransferred protowire.Number = 1
)

var errNotWireMessage = errors.New("not a transfer daemon message")

// wireMessage is implemented by the messages of the transfer service, which
// know how to encode themselves in the protobuf wire format.
type wireMessage interface {
	appendWire(b []byte) []byte
	consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error)
}

// Codec encodes our messages in the protobuf wire format, so we can talk to
// daemons built from transferd.proto without generated code.
type Codec struct{}

// Marshal encodes v, which must be one of our message types.
func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("%w: %T", errNotWireMessage, v)
	}

	return m.appendWire(nil), nil
}

// Unmarshal decodes data in to v, which must be one of our message types.
// Fields we don't know about are skipped.
func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("%w: %T", errNotWireMessage, v)
	}

	return consumeMessage(data, m)
}

func (Codec) Name() string {
	return codecName
}

// ServerOption makes a grpc.Server use our Codec. Servers that register a
// TransferServiceServer need it.
func ServerOption() grpc.ServerOption {
	return grpc.ForceServerCodec(Codec{})
}

func callOption() grpc.CallOption {
	return grpc.ForceCodec(Codec{})
}

func consumeMessage(b []byte, m wireMessage) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}

		b = b[n:]

		used, err := m.consumeField(num, typ, b)
		if err != nil {
			return err
		}

		if used == 0 {
			used = protowire.ConsumeFieldValue(num, typ, b)
			if used < 0 {
				return protowire.ParseError(used)
			}
		}

		b = b[used:]
	}

	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.BytesType)

	return protowire.AppendString(b, s)
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.VarintType)

	return protowire.AppendVarint(b, uint64(int64(v)))
}

func appendUint64(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.VarintType)

	return protowire.AppendVarint(b, v)
}

func appendMessage(b []byte, num protowire.Number, m wireMessage) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)

	return protowire.AppendBytes(b, m.appendWire(nil))
}

// consumeString decodes a string field, returning 0 (ie. skip it) if it has
// an unexpected wire type.
func consumeString(typ protowire.Type, b []byte, s *string) (int, error) {
	if typ != protowire.BytesType {
		return 0, nil
	}

	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}

	*s = v

	return n, nil
}

func consumeVarint(typ protowire.Type, b []byte, v *uint64) (int, error) {
	if typ != protowire.VarintType {
		return 0, nil
	}

	u, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}

	*v = u

	return n, nil
}

func consumeInt32(typ protowire.Type, b []byte, v *int32) (int, error) {
	var u uint64

	n, err := consumeVarint(typ, b, &u)
	if n > 0 {
		*v = int32(u) //nolint:gosec
	}

	return n, err
}

func consumeEmbedded(typ protowire.Type, b []byte, m wireMessage) (int, error) {
	if typ != protowire.BytesType {
		return 0, nil
	}

	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}

	return n, consumeMessage(v, m)
}

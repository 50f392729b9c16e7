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

import "google.golang.org/protobuf/encoding/protowire"

func (*InstanceInfoRequest) appendWire(b []byte) []byte { return b }

func (*InstanceInfoRequest) consumeField(protowire.Number, protowire.Type, []byte) (int, error) {
	return 0, nil
}

func (m *InstanceInfoResponse) appendWire(b []byte) []byte {
	return appendString(b, fieldInfoAPIVersion, m.APIVersion)
}

func (m *InstanceInfoResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	if num == fieldInfoAPIVersion {
		return consumeString(typ, b, &m.APIVersion)
	}

	return 0, nil
}

func (m *Error) appendWire(b []byte) []byte {
	b = appendInt32(b, fieldErrorCode, m.Code)

	return appendString(b, fieldErrorDescription, m.Description)
}

func (m *Error) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case fieldErrorCode:
		return consumeInt32(typ, b, &m.Code)
	case fieldErrorDescription:
		return consumeString(typ, b, &m.Description)
	}

	return 0, nil
}

func (m *TransferConfig) appendWire(b []byte) []byte {
	return appendInt32(b, fieldConfigLogLevel, m.LogLevel)
}

func (m *TransferConfig) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	if num == fieldConfigLogLevel {
		return consumeInt32(typ, b, &m.LogLevel)
	}

	return 0, nil
}

func (m *TransferRequest) appendWire(b []byte) []byte {
	b = appendInt32(b, fieldRequestType, int32(m.TransferType))

	if m.Config != nil {
		b = appendMessage(b, fieldRequestConfig, m.Config)
	}

	return appendString(b, fieldRequestSpec, m.TransferSpec)
}

func (m *TransferRequest) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case fieldRequestType:
		return consumeInt32(typ, b, (*int32)(&m.TransferType))
	case fieldRequestConfig:
		m.Config = new(TransferConfig)

		return consumeEmbedded(typ, b, m.Config)
	case fieldRequestSpec:
		return consumeString(typ, b, &m.TransferSpec)
	}

	return 0, nil
}

func (m *StartTransferResponse) appendWire(b []byte) []byte {
	b = appendString(b, fieldStartID, m.TransferID)
	b = appendInt32(b, fieldStartStatus, int32(m.Status))

	if m.Error != nil {
		b = appendMessage(b, fieldStartError, m.Error)
	}

	return b
}

func (m *StartTransferResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case fieldStartID:
		return consumeString(typ, b, &m.TransferID)
	case fieldStartStatus:
		return consumeInt32(typ, b, (*int32)(&m.Status))
	case fieldStartError:
		m.Error = new(Error)

		return consumeEmbedded(typ, b, m.Error)
	}

	return 0, nil
}

func (m *RegistrationFilter) appendWire(b []byte) []byte {
	for _, id := range m.TransferID {
		b = protowire.AppendTag(b, fieldFilterTransferID, protowire.BytesType)
		b = protowire.AppendString(b, id)
	}

	return b
}

func (m *RegistrationFilter) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	if num != fieldFilterTransferID {
		return 0, nil
	}

	var id string

	n, err := consumeString(typ, b, &id)
	if n > 0 && err == nil {
		m.TransferID = append(m.TransferID, id)
	}

	return n, err
}

func (m *RegistrationRequest) appendWire(b []byte) []byte {
	for _, f := range m.Filters {
		b = appendMessage(b, fieldRegistrationFilters, f)
	}

	return b
}

func (m *RegistrationRequest) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	if num != fieldRegistrationFilters {
		return 0, nil
	}

	f := new(RegistrationFilter)

	n, err := consumeEmbedded(typ, b, f)
	if n > 0 && err == nil {
		m.Filters = append(m.Filters, f)
	}

	return n, err
}

// transferInfo is the statistics sub-message of a TransferResponse.
type transferInfo struct {
	bytesTransferred *uint64
}

func (m transferInfo) appendWire(b []byte) []byte {
	return appendUint64(b, fieldInfoBytesTransferred, *m.bytesTransferred)
}

func (m transferInfo) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	if num == fieldInfoBytesTransferred {
		return consumeVarint(typ, b, m.bytesTransferred)
	}

	return 0, nil
}

func (m *TransferResponse) appendWire(b []byte) []byte {
	b = appendString(b, fieldResponseID, m.TransferID)
	b = appendInt32(b, fieldResponseStatus, int32(m.Status))

	if m.BytesTransferred > 0 {
		b = appendMessage(b, fieldResponseInfo, transferInfo{&m.BytesTransferred})
	}

	if m.Error != nil {
		b = appendMessage(b, fieldResponseError, m.Error)
	}

	return appendString(b, fieldResponseMessage, m.Message)
}

func (m *TransferResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case fieldResponseID:
		return consumeString(typ, b, &m.TransferID)
	case fieldResponseStatus:
		return consumeInt32(typ, b, (*int32)(&m.Status))
	case fieldResponseInfo:
		return consumeEmbedded(typ, b, transferInfo{&m.BytesTransferred})
	case fieldResponseError:
		m.Error = new(Error)

		return consumeEmbedded(typ, b, m.Error)
	case fieldResponseMessage:
		return consumeString(typ, b, &m.Message)
	}

	return 0, nil
}

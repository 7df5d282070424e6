// Package wire encodes and decodes the protocol messages described in
// api/proto/ipc.proto. The codec is written by hand against the protobuf
// wire format (encoding/protowire) so the schema stays in one small file
// and the repository carries no generated code. Field numbers here must
// match the .proto; unknown fields are skipped on decode, proto3 style.
package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"computeq/pkg/types"
)

// ErrTruncated is returned when a buffer ends inside a field.
var ErrTruncated = errors.New("wire: truncated message")

// FirstHandshake is the one-shot registration frame. The low byte of
// ExecFunctions carries the capability bitmask.
type FirstHandshake struct {
	ClientName    string
	ExecFunctions uint32
}

// Caps extracts the capability bitmask from the handshake.
func (m *FirstHandshake) Caps() types.Caps {
	return types.Caps(m.ExecFunctions & 0xff)
}

// MathArgs carries a math submission: op plus two 32-bit operands.
type MathArgs struct {
	Op types.MathOp
	A  int32
	B  int32
}

// StrArgs carries a string submission.
type StrArgs struct {
	Op types.StrOp
	S1 string
	S2 string
}

// SubmitRequest is a submission envelope half. Exactly one of Math or Str
// must be set for the request to be well-formed.
type SubmitRequest struct {
	Mode types.SubmitMode
	Math *MathArgs
	Str  *StrArgs
}

// GetRequest retrieves the result of a ticketed submission.
type GetRequest struct {
	Ticket    types.Ticket
	WaitMode  types.WaitMode
	TimeoutMS uint32
}

// EnvelopeReq is the top-level request union.
type EnvelopeReq struct {
	Submit *SubmitRequest
	Get    *GetRequest
}

// SubmitResponse answers a submission. Ticket is present only for
// accepted non-blocking submissions, Result only for blocking successes.
type SubmitResponse struct {
	Status types.Status
	Ticket *types.Ticket
	Result *types.Result
}

// GetResponse answers a retrieval.
type GetResponse struct {
	Status types.Status
	Result *types.Result
}

// EnvelopeResp is the top-level response union.
type EnvelopeResp struct {
	Submit *SubmitResponse
	Get    *GetResponse
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v)))
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

// MarshalHandshake encodes a FirstHandshake frame.
func MarshalHandshake(m *FirstHandshake) []byte {
	var b []byte
	if m.ClientName != "" {
		b = appendString(b, 1, m.ClientName)
	}
	if m.ExecFunctions != 0 {
		b = appendUint(b, 2, uint64(m.ExecFunctions))
	}
	return b
}

func appendTicket(b []byte, num protowire.Number, t types.Ticket) []byte {
	var body []byte
	if t != 0 {
		body = appendUint(body, 1, uint64(t))
	}
	return appendMessage(b, num, body)
}

func appendMathArgs(b []byte, num protowire.Number, m *MathArgs) []byte {
	var body []byte
	if m.Op != 0 {
		body = appendInt32(body, 1, int32(m.Op))
	}
	if m.A != 0 {
		body = appendInt32(body, 2, m.A)
	}
	if m.B != 0 {
		body = appendInt32(body, 3, m.B)
	}
	return appendMessage(b, num, body)
}

func appendStrArgs(b []byte, num protowire.Number, m *StrArgs) []byte {
	var body []byte
	if m.Op != 0 {
		body = appendInt32(body, 1, int32(m.Op))
	}
	if m.S1 != "" {
		body = appendString(body, 2, m.S1)
	}
	if m.S2 != "" {
		body = appendString(body, 3, m.S2)
	}
	return appendMessage(b, num, body)
}

func appendSubmitRequest(b []byte, num protowire.Number, m *SubmitRequest) []byte {
	var body []byte
	if m.Mode != 0 {
		body = appendInt32(body, 1, int32(m.Mode))
	}
	if m.Math != nil {
		body = appendMathArgs(body, 2, m.Math)
	}
	if m.Str != nil {
		body = appendStrArgs(body, 3, m.Str)
	}
	return appendMessage(b, num, body)
}

func appendGetRequest(b []byte, num protowire.Number, m *GetRequest) []byte {
	var body []byte
	body = appendTicket(body, 1, m.Ticket)
	if m.WaitMode != 0 {
		body = appendInt32(body, 2, int32(m.WaitMode))
	}
	if m.TimeoutMS != 0 {
		body = appendUint(body, 3, uint64(m.TimeoutMS))
	}
	return appendMessage(b, num, body)
}

// MarshalReq encodes a request envelope.
func MarshalReq(m *EnvelopeReq) []byte {
	var b []byte
	if m.Submit != nil {
		b = appendSubmitRequest(b, 1, m.Submit)
	}
	if m.Get != nil {
		b = appendGetRequest(b, 2, m.Get)
	}
	return b
}

func appendResult(b []byte, num protowire.Number, r *types.Result) []byte {
	var body []byte
	// Oneof presence is meaningful even for zero values: FIND_START of an
	// empty needle yields position 0, and 40 + -40 yields int_result 0.
	switch r.Kind {
	case types.ResultInt:
		body = protowire.AppendTag(body, 1, protowire.VarintType)
		body = protowire.AppendVarint(body, uint64(int64(r.Int)))
	case types.ResultPos:
		body = protowire.AppendTag(body, 2, protowire.VarintType)
		body = protowire.AppendVarint(body, uint64(int64(r.Pos)))
	case types.ResultStr:
		body = appendString(body, 3, r.Str)
	}
	return appendMessage(b, num, body)
}

func appendSubmitResponse(b []byte, num protowire.Number, m *SubmitResponse) []byte {
	var body []byte
	if m.Status != 0 {
		body = appendInt32(body, 1, int32(m.Status))
	}
	if m.Ticket != nil {
		body = appendTicket(body, 2, *m.Ticket)
	}
	if m.Result != nil {
		body = appendResult(body, 3, m.Result)
	}
	return appendMessage(b, num, body)
}

func appendGetResponse(b []byte, num protowire.Number, m *GetResponse) []byte {
	var body []byte
	if m.Status != 0 {
		body = appendInt32(body, 1, int32(m.Status))
	}
	if m.Result != nil {
		body = appendResult(body, 2, m.Result)
	}
	return appendMessage(b, num, body)
}

// MarshalResp encodes a response envelope.
func MarshalResp(m *EnvelopeResp) []byte {
	var b []byte
	if m.Submit != nil {
		b = appendSubmitResponse(b, 1, m.Submit)
	}
	if m.Get != nil {
		b = appendGetResponse(b, 2, m.Get)
	}
	return b
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// walkFields iterates the fields of one message body. A visitor that
// returns a negative length declines the field, and its value is skipped.
func walkFields(b []byte, visit func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ErrTruncated
		}
		b = b[n:]
		used, err := visit(num, typ, b)
		if err != nil {
			return err
		}
		if used < 0 {
			used = protowire.ConsumeFieldValue(num, typ, b)
			if used < 0 {
				return ErrTruncated
			}
		}
		b = b[used:]
	}
	return nil
}

func consumeVarint(b []byte) (uint64, int, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, ErrTruncated
	}
	return v, n, nil
}

func consumeBytes(b []byte) ([]byte, int, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, ErrTruncated
	}
	return v, n, nil
}

// UnmarshalHandshake decodes a FirstHandshake frame.
func UnmarshalHandshake(b []byte) (*FirstHandshake, error) {
	m := &FirstHandshake{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			m.ClientName = string(v)
			return n, nil
		case num == 2 && typ == protowire.VarintType:
			v, n, err := consumeVarint(b)
			if err != nil {
				return 0, err
			}
			m.ExecFunctions = uint32(v)
			return n, nil
		}
		return -1, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func unmarshalTicket(b []byte) (types.Ticket, error) {
	var t types.Ticket
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.VarintType {
			v, n, err := consumeVarint(b)
			if err != nil {
				return 0, err
			}
			t = types.Ticket(v)
			return n, nil
		}
		return -1, nil
	})
	return t, err
}

func unmarshalMathArgs(b []byte) (*MathArgs, error) {
	m := &MathArgs{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.VarintType {
			return -1, nil
		}
		v, n, err := consumeVarint(b)
		if err != nil {
			return 0, err
		}
		switch num {
		case 1:
			m.Op = types.MathOp(int32(v))
		case 2:
			m.A = int32(v)
		case 3:
			m.B = int32(v)
		default:
			return -1, nil
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func unmarshalStrArgs(b []byte) (*StrArgs, error) {
	m := &StrArgs{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n, err := consumeVarint(b)
			if err != nil {
				return 0, err
			}
			m.Op = types.StrOp(int32(v))
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			m.S1 = string(v)
			return n, nil
		case num == 3 && typ == protowire.BytesType:
			v, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			m.S2 = string(v)
			return n, nil
		}
		return -1, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func unmarshalSubmitRequest(b []byte) (*SubmitRequest, error) {
	m := &SubmitRequest{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n, err := consumeVarint(b)
			if err != nil {
				return 0, err
			}
			m.Mode = types.SubmitMode(int32(v))
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			math, err := unmarshalMathArgs(v)
			if err != nil {
				return 0, err
			}
			m.Math, m.Str = math, nil
			return n, nil
		case num == 3 && typ == protowire.BytesType:
			v, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			str, err := unmarshalStrArgs(v)
			if err != nil {
				return 0, err
			}
			m.Str, m.Math = str, nil
			return n, nil
		}
		return -1, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func unmarshalGetRequest(b []byte) (*GetRequest, error) {
	m := &GetRequest{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			t, err := unmarshalTicket(v)
			if err != nil {
				return 0, err
			}
			m.Ticket = t
			return n, nil
		case num == 2 && typ == protowire.VarintType:
			v, n, err := consumeVarint(b)
			if err != nil {
				return 0, err
			}
			m.WaitMode = types.WaitMode(int32(v))
			return n, nil
		case num == 3 && typ == protowire.VarintType:
			v, n, err := consumeVarint(b)
			if err != nil {
				return 0, err
			}
			m.TimeoutMS = uint32(v)
			return n, nil
		}
		return -1, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UnmarshalReq decodes a request envelope. A payload that decodes to an
// envelope with neither variant set is reported as an error so callers
// can treat it as malformed input.
func UnmarshalReq(b []byte) (*EnvelopeReq, error) {
	m := &EnvelopeReq{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			sub, err := unmarshalSubmitRequest(v)
			if err != nil {
				return 0, err
			}
			m.Submit, m.Get = sub, nil
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			get, err := unmarshalGetRequest(v)
			if err != nil {
				return 0, err
			}
			m.Get, m.Submit = get, nil
			return n, nil
		}
		return -1, nil
	})
	if err != nil {
		return nil, err
	}
	if m.Submit == nil && m.Get == nil {
		return nil, fmt.Errorf("wire: envelope carries no request variant")
	}
	return m, nil
}

func unmarshalResult(b []byte) (*types.Result, error) {
	r := &types.Result{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.VarintType && typ != protowire.BytesType {
			return -1, nil
		}
		switch num {
		case 1:
			v, n, err := consumeVarint(b)
			if err != nil {
				return 0, err
			}
			r.Kind, r.Int = types.ResultInt, int32(v)
			return n, nil
		case 2:
			v, n, err := consumeVarint(b)
			if err != nil {
				return 0, err
			}
			r.Kind, r.Pos = types.ResultPos, int32(v)
			return n, nil
		case 3:
			v, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			r.Kind, r.Str = types.ResultStr, string(v)
			return n, nil
		}
		return -1, nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func unmarshalSubmitResponse(b []byte) (*SubmitResponse, error) {
	m := &SubmitResponse{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n, err := consumeVarint(b)
			if err != nil {
				return 0, err
			}
			m.Status = types.Status(int32(v))
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			t, err := unmarshalTicket(v)
			if err != nil {
				return 0, err
			}
			m.Ticket = &t
			return n, nil
		case num == 3 && typ == protowire.BytesType:
			v, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			r, err := unmarshalResult(v)
			if err != nil {
				return 0, err
			}
			m.Result = r
			return n, nil
		}
		return -1, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func unmarshalGetResponse(b []byte) (*GetResponse, error) {
	m := &GetResponse{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n, err := consumeVarint(b)
			if err != nil {
				return 0, err
			}
			m.Status = types.Status(int32(v))
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			r, err := unmarshalResult(v)
			if err != nil {
				return 0, err
			}
			m.Result = r
			return n, nil
		}
		return -1, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UnmarshalResp decodes a response envelope.
func UnmarshalResp(b []byte) (*EnvelopeResp, error) {
	m := &EnvelopeResp{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			sub, err := unmarshalSubmitResponse(v)
			if err != nil {
				return 0, err
			}
			m.Submit, m.Get = sub, nil
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			get, err := unmarshalGetResponse(v)
			if err != nil {
				return 0, err
			}
			m.Get, m.Submit = get, nil
			return n, nil
		}
		return -1, nil
	})
	if err != nil {
		return nil, err
	}
	if m.Submit == nil && m.Get == nil {
		return nil, fmt.Errorf("wire: envelope carries no response variant")
	}
	return m, nil
}

// Package types defines the core domain model shared by the computeq
// server and client: status codes, operation identifiers, the capability
// bitmask, tickets, and the tagged result union.
package types

import (
	"fmt"
	"strings"
)

// Ticket is the opaque 64-bit handle returned for a non-blocking
// submission. Tickets are unique within one server process lifetime;
// nothing else about their value is part of the contract.
type Ticket uint64

// Status is the status code carried on every response.
type Status int32

const (
	StatusSuccess        Status = 0
	StatusInvalidInput   Status = 1
	StatusDivByZero      Status = 2
	StatusSubstrNotFound Status = 3
	StatusStringTooLong  Status = 4
	StatusInternal       Status = 5
	StatusNotFinished    Status = 6
)

// Terminal reports whether the status ends a job's lifecycle.
// NOT_FINISHED is a transient state, not an error.
func (s Status) Terminal() bool {
	return s != StatusNotFinished
}

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInvalidInput:
		return "ERROR_INVALID_INPUT"
	case StatusDivByZero:
		return "ERROR_DIV_BY_ZERO"
	case StatusSubstrNotFound:
		return "ERROR_SUBSTR_NOT_FOUND"
	case StatusStringTooLong:
		return "ERROR_STRING_TOO_LONG"
	case StatusInternal:
		return "ERROR_INTERNAL"
	case StatusNotFinished:
		return "NOT_FINISHED"
	}
	return fmt.Sprintf("STATUS(%d)", int32(s))
}

// MathOp identifies one of the four integer operations.
type MathOp int32

const (
	MathAdd MathOp = 0
	MathSub MathOp = 1
	MathMul MathOp = 2
	MathDiv MathOp = 3
)

func (op MathOp) String() string {
	switch op {
	case MathAdd:
		return "MATH_ADD"
	case MathSub:
		return "MATH_SUB"
	case MathMul:
		return "MATH_MUL"
	case MathDiv:
		return "MATH_DIV"
	}
	return fmt.Sprintf("MATH_OP(%d)", int32(op))
}

// StrOp identifies one of the two string operations.
type StrOp int32

const (
	StrConcat    StrOp = 0
	StrFindStart StrOp = 1
)

func (op StrOp) String() string {
	switch op {
	case StrConcat:
		return "STR_CONCAT"
	case StrFindStart:
		return "STR_FIND_START"
	}
	return fmt.Sprintf("STR_OP(%d)", int32(op))
}

// SubmitMode selects synchronous or ticketed execution.
type SubmitMode int32

const (
	Blocking    SubmitMode = 0
	NonBlocking SubmitMode = 1
)

// WaitMode selects how a GET behaves for an unfinished ticket.
type WaitMode int32

const (
	NoWait   WaitMode = 0
	WaitUpTo WaitMode = 1
)

// Caps is the 8-bit capability bitmask a client advertises during the
// handshake. Bits 0..5 permit the six operations.
type Caps uint8

const (
	CapAdd       Caps = 1 << 0
	CapSub       Caps = 1 << 1
	CapMult      Caps = 1 << 2
	CapDiv       Caps = 1 << 3
	CapConcat    Caps = 1 << 4
	CapFindStart Caps = 1 << 5

	capsAll = CapAdd | CapSub | CapMult | CapDiv | CapConcat | CapFindStart
)

// Valid reports whether the bitmask is non-zero and sets no bits outside
// the six defined flags.
func (c Caps) Valid() bool {
	return c != 0 && c&^capsAll == 0
}

// Has reports whether every flag in want is set.
func (c Caps) Has(want Caps) bool {
	return c&want == want
}

// RequiredForMath returns the capability flag a math submission needs.
func RequiredForMath(op MathOp) (Caps, bool) {
	switch op {
	case MathAdd:
		return CapAdd, true
	case MathSub:
		return CapSub, true
	case MathMul:
		return CapMult, true
	case MathDiv:
		return CapDiv, true
	}
	return 0, false
}

// RequiredForStr returns the capability flag a string submission needs.
func RequiredForStr(op StrOp) (Caps, bool) {
	switch op {
	case StrConcat:
		return CapConcat, true
	case StrFindStart:
		return CapFindStart, true
	}
	return 0, false
}

var capNames = map[string]Caps{
	"add":        CapAdd,
	"sub":        CapSub,
	"mult":       CapMult,
	"div":        CapDiv,
	"concat":     CapConcat,
	"find_start": CapFindStart,
	"find":       CapFindStart,
}

// ParseCaps builds a bitmask from a comma-separated flag list such as
// "add,mult,concat". The special value "all" enables every flag.
func ParseCaps(s string) (Caps, error) {
	var caps Caps
	for _, tok := range strings.Split(s, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		if tok == "all" {
			caps |= capsAll
			continue
		}
		flag, ok := capNames[tok]
		if !ok {
			return 0, fmt.Errorf("unknown capability %q", tok)
		}
		caps |= flag
	}
	if !caps.Valid() {
		return 0, fmt.Errorf("capability list %q yields an empty bitmask", s)
	}
	return caps, nil
}

// String renders the bitmask as the flag list ParseCaps accepts.
func (c Caps) String() string {
	var names []string
	for _, f := range []struct {
		flag Caps
		name string
	}{
		{CapAdd, "add"},
		{CapSub, "sub"},
		{CapMult, "mult"},
		{CapDiv, "div"},
		{CapConcat, "concat"},
		{CapFindStart, "find_start"},
	} {
		if c&f.flag != 0 {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// ResultKind discriminates the Result union.
type ResultKind int32

const (
	ResultNone ResultKind = iota
	ResultInt
	ResultPos
	ResultStr
)

// Result is the tagged result union: exactly one of the int, position, or
// string variants is set, selected by Kind.
type Result struct {
	Kind ResultKind
	Int  int32
	Pos  int32
	Str  string
}

// IntResult builds an integer result.
func IntResult(v int32) *Result { return &Result{Kind: ResultInt, Int: v} }

// PosResult builds a position result.
func PosResult(v int32) *Result { return &Result{Kind: ResultPos, Pos: v} }

// StrResult builds a string result.
func StrResult(v string) *Result { return &Result{Kind: ResultStr, Str: v} }

func (r *Result) String() string {
	if r == nil {
		return "<none>"
	}
	switch r.Kind {
	case ResultInt:
		return fmt.Sprintf("Int=%d", r.Int)
	case ResultPos:
		return fmt.Sprintf("Pos=%d", r.Pos)
	case ResultStr:
		return fmt.Sprintf("Str=%s", r.Str)
	}
	return "<none>"
}

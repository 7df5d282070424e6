// Package compute implements the six operation kernels. All kernels are
// pure functions, safe to call concurrently, and report failures through
// the status code rather than errors: a malformed value is part of the
// protocol, not an exceptional condition.
package compute

import (
	"strings"

	"computeq/internal/wire"
	"computeq/pkg/types"
)

// MaxConcatLen is the longest result CONCAT may produce, in octets.
const MaxConcatLen = 32

// Add returns a+b with two's-complement wraparound.
func Add(a, b int32) int32 { return a + b }

// Sub returns a-b with two's-complement wraparound.
func Sub(a, b int32) int32 { return a - b }

// Mul returns a*b with two's-complement wraparound.
func Mul(a, b int32) int32 { return a * b }

// Div returns the quotient truncated toward zero. A zero divisor yields
// ERROR_DIV_BY_ZERO and no result.
func Div(a, b int32) (int32, types.Status) {
	if b == 0 {
		return 0, types.StatusDivByZero
	}
	return a / b, types.StatusSuccess
}

// Concat joins s1 and s2, failing with ERROR_STRING_TOO_LONG when the
// combined length exceeds MaxConcatLen octets.
func Concat(s1, s2 string) (string, types.Status) {
	if len(s1)+len(s2) > MaxConcatLen {
		return "", types.StatusStringTooLong
	}
	return s1 + s2, types.StatusSuccess
}

// FindStart returns the first octet offset of needle in haystack. An
// empty needle matches at offset 0; a miss yields ERROR_SUBSTR_NOT_FOUND.
func FindStart(haystack, needle string) (int32, types.Status) {
	pos := strings.Index(haystack, needle)
	if pos < 0 {
		return 0, types.StatusSubstrNotFound
	}
	return int32(pos), types.StatusSuccess
}

// Run executes the kernel selected by the submission and returns the
// terminal status plus the result for successes. Requests carrying no
// recognised operation yield ERROR_INVALID_INPUT.
func Run(req *wire.SubmitRequest) (types.Status, *types.Result) {
	switch {
	case req.Math != nil && req.Str == nil:
		return runMath(req.Math)
	case req.Str != nil && req.Math == nil:
		return runStr(req.Str)
	}
	return types.StatusInvalidInput, nil
}

func runMath(m *wire.MathArgs) (types.Status, *types.Result) {
	switch m.Op {
	case types.MathAdd:
		return types.StatusSuccess, types.IntResult(Add(m.A, m.B))
	case types.MathSub:
		return types.StatusSuccess, types.IntResult(Sub(m.A, m.B))
	case types.MathMul:
		return types.StatusSuccess, types.IntResult(Mul(m.A, m.B))
	case types.MathDiv:
		q, st := Div(m.A, m.B)
		if st != types.StatusSuccess {
			return st, nil
		}
		return types.StatusSuccess, types.IntResult(q)
	}
	return types.StatusInvalidInput, nil
}

func runStr(s *wire.StrArgs) (types.Status, *types.Result) {
	switch s.Op {
	case types.StrConcat:
		r, st := Concat(s.S1, s.S2)
		if st != types.StatusSuccess {
			return st, nil
		}
		return types.StatusSuccess, types.StrResult(r)
	case types.StrFindStart:
		pos, st := FindStart(s.S1, s.S2)
		if st != types.StatusSuccess {
			return st, nil
		}
		return types.StatusSuccess, types.PosResult(pos)
	}
	return types.StatusInvalidInput, nil
}

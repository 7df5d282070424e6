package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapsValid(t *testing.T) {
	assert.False(t, Caps(0).Valid(), "empty bitmask is invalid")
	assert.True(t, CapAdd.Valid())
	assert.True(t, (CapAdd | CapSub | CapMult | CapDiv | CapConcat | CapFindStart).Valid())
	assert.False(t, Caps(0x40).Valid(), "bit 6 is outside the six flags")
	assert.False(t, Caps(0x80|uint8(CapAdd)).Valid(), "high bit plus a valid flag is still invalid")
}

func TestCapsHas(t *testing.T) {
	caps := CapAdd | CapMult | CapConcat
	assert.True(t, caps.Has(CapAdd))
	assert.True(t, caps.Has(CapMult))
	assert.False(t, caps.Has(CapSub))
	assert.False(t, caps.Has(CapAdd|CapSub), "Has requires every flag")
}

func TestRequiredForMath(t *testing.T) {
	cases := []struct {
		op   MathOp
		want Caps
	}{
		{MathAdd, CapAdd},
		{MathSub, CapSub},
		{MathMul, CapMult},
		{MathDiv, CapDiv},
	}
	for _, tc := range cases {
		flag, ok := RequiredForMath(tc.op)
		require.True(t, ok, "op %s should be recognised", tc.op)
		assert.Equal(t, tc.want, flag)
	}

	_, ok := RequiredForMath(MathOp(99))
	assert.False(t, ok, "unknown op has no required flag")
}

func TestRequiredForStr(t *testing.T) {
	flag, ok := RequiredForStr(StrConcat)
	require.True(t, ok)
	assert.Equal(t, CapConcat, flag)

	flag, ok = RequiredForStr(StrFindStart)
	require.True(t, ok)
	assert.Equal(t, CapFindStart, flag)

	_, ok = RequiredForStr(StrOp(7))
	assert.False(t, ok)
}

func TestParseCaps(t *testing.T) {
	caps, err := ParseCaps("add,mult,concat")
	require.NoError(t, err)
	assert.Equal(t, CapAdd|CapMult|CapConcat, caps)

	caps, err = ParseCaps("ALL")
	require.NoError(t, err)
	assert.True(t, caps.Has(CapAdd|CapSub|CapMult|CapDiv|CapConcat|CapFindStart))

	caps, err = ParseCaps("find")
	require.NoError(t, err)
	assert.Equal(t, CapFindStart, caps)

	_, err = ParseCaps("add,teleport")
	assert.Error(t, err, "unknown flag names are rejected")

	_, err = ParseCaps("")
	assert.Error(t, err, "empty list yields no capabilities")
}

func TestCapsString(t *testing.T) {
	assert.Equal(t, "add,concat", (CapAdd | CapConcat).String())
	assert.Equal(t, "none", Caps(0).String())

	// String output round-trips through ParseCaps.
	caps := CapSub | CapDiv | CapFindStart
	parsed, err := ParseCaps(caps.String())
	require.NoError(t, err)
	assert.Equal(t, caps, parsed)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusNotFinished.Terminal())
	for _, s := range []Status{StatusSuccess, StatusInvalidInput, StatusDivByZero, StatusSubstrNotFound, StatusStringTooLong, StatusInternal} {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
}

func TestResultConstructors(t *testing.T) {
	assert.Equal(t, &Result{Kind: ResultInt, Int: 42}, IntResult(42))
	assert.Equal(t, &Result{Kind: ResultPos, Pos: 0}, PosResult(0))
	assert.Equal(t, &Result{Kind: ResultStr, Str: "ab"}, StrResult("ab"))
	assert.Equal(t, "Int=42", IntResult(42).String())
	assert.Equal(t, "Pos=2", PosResult(2).String())
	assert.Equal(t, "Str=helloworld", StrResult("helloworld").String())
}

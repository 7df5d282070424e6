package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"computeq/internal/registry"
	"computeq/internal/runner"
	"computeq/internal/wire"
	"computeq/pkg/types"
)

// newTestDispatcher builds a dispatcher over a live runner so the full
// submit/get path runs, minus the transport.
func newTestDispatcher(t *testing.T) (*Dispatcher, *runner.Runner) {
	t.Helper()
	run, err := runner.New(runner.Config{Threads: 2}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(run.Close)
	return NewDispatcher(registry.New(), run, nil, nil), run
}

func handshake(caps types.Caps) []byte {
	return wire.MarshalHandshake(&wire.FirstHandshake{
		ClientName:    "test-client",
		ExecFunctions: uint32(caps),
	})
}

func submitFrame(mode types.SubmitMode, req *wire.SubmitRequest) []byte {
	send := *req
	send.Mode = mode
	return wire.MarshalReq(&wire.EnvelopeReq{Submit: &send})
}

func getFrame(ticket types.Ticket, mode types.WaitMode, timeoutMS uint32) []byte {
	return wire.MarshalReq(&wire.EnvelopeReq{Get: &wire.GetRequest{
		Ticket:    ticket,
		WaitMode:  mode,
		TimeoutMS: timeoutMS,
	}})
}

func decodeResp(t *testing.T, payload []byte) *wire.EnvelopeResp {
	t.Helper()
	require.NotNil(t, payload, "expected a reply frame")
	resp, err := wire.UnmarshalResp(payload)
	require.NoError(t, err)
	return resp
}

func TestHandshakeRegistersWithoutReply(t *testing.T) {
	d, _ := newTestDispatcher(t)
	identity := []byte("dealer-1")

	reply := d.HandleFrame(identity, handshake(types.CapAdd|types.CapMult|types.CapConcat))
	assert.Nil(t, reply, "a valid handshake is not answered")

	caps, ok := d.registry.Lookup(identity)
	require.True(t, ok)
	assert.Equal(t, types.CapAdd|types.CapMult|types.CapConcat, caps)
}

func TestUnknownIdentityNonHandshakeIsRejected(t *testing.T) {
	d, _ := newTestDispatcher(t)

	// A request envelope before any handshake.
	payload := submitFrame(types.Blocking, &wire.SubmitRequest{
		Math: &wire.MathArgs{Op: types.MathAdd, A: 1, B: 2},
	})
	resp := decodeResp(t, d.HandleFrame([]byte("stranger"), payload))
	require.NotNil(t, resp.Submit)
	assert.Equal(t, types.StatusInvalidInput, resp.Submit.Status)

	_, ok := d.registry.Lookup([]byte("stranger"))
	assert.False(t, ok, "a rejected first frame does not register the identity")
}

func TestHandshakeWithInvalidCapsIsRejected(t *testing.T) {
	d, _ := newTestDispatcher(t)

	for _, caps := range []uint32{0, 0x40, 0xc1} {
		payload := wire.MarshalHandshake(&wire.FirstHandshake{ExecFunctions: caps})
		resp := decodeResp(t, d.HandleFrame([]byte("dealer-x"), payload))
		require.NotNil(t, resp.Submit)
		assert.Equal(t, types.StatusInvalidInput, resp.Submit.Status, "caps %#x", caps)
	}
}

func TestBlockingSubmitScenario(t *testing.T) {
	d, _ := newTestDispatcher(t)
	identity := []byte("dealer-1")
	require.Nil(t, d.HandleFrame(identity, handshake(types.CapAdd|types.CapMult|types.CapConcat)))

	// submit(BLOCKING, MATH_ADD, 40, 2) -> SUCCESS, 42
	resp := decodeResp(t, d.HandleFrame(identity, submitFrame(types.Blocking, &wire.SubmitRequest{
		Math: &wire.MathArgs{Op: types.MathAdd, A: 40, B: 2},
	})))
	require.NotNil(t, resp.Submit)
	assert.Equal(t, types.StatusSuccess, resp.Submit.Status)
	assert.Equal(t, types.IntResult(42), resp.Submit.Result)
}

func TestCapabilityDenialEnqueuesNothing(t *testing.T) {
	d, run := newTestDispatcher(t)
	identity := []byte("dealer-1")
	require.Nil(t, d.HandleFrame(identity, handshake(types.CapAdd|types.CapMult|types.CapConcat)))

	// SUB is outside the registered caps, blocking and non-blocking alike.
	for _, mode := range []types.SubmitMode{types.Blocking, types.NonBlocking} {
		resp := decodeResp(t, d.HandleFrame(identity, submitFrame(mode, &wire.SubmitRequest{
			Math: &wire.MathArgs{Op: types.MathSub, A: 5, B: 3},
		})))
		require.NotNil(t, resp.Submit)
		assert.Equal(t, types.StatusInvalidInput, resp.Submit.Status)
		assert.Nil(t, resp.Submit.Ticket)
	}
	assert.Equal(t, 0, run.Pending(), "denied submissions must not reach the store")
}

func TestDivByZeroScenario(t *testing.T) {
	d, _ := newTestDispatcher(t)
	identity := []byte("dealer-div")
	require.Nil(t, d.HandleFrame(identity, handshake(types.CapDiv)))

	resp := decodeResp(t, d.HandleFrame(identity, submitFrame(types.Blocking, &wire.SubmitRequest{
		Math: &wire.MathArgs{Op: types.MathDiv, A: 10, B: 0},
	})))
	require.NotNil(t, resp.Submit)
	assert.Equal(t, types.StatusDivByZero, resp.Submit.Status)
}

func TestNonBlockingTicketLifecycle(t *testing.T) {
	d, _ := newTestDispatcher(t)
	identity := []byte("dealer-concat")
	require.Nil(t, d.HandleFrame(identity, handshake(types.CapConcat)))

	resp := decodeResp(t, d.HandleFrame(identity, submitFrame(types.NonBlocking, &wire.SubmitRequest{
		Str: &wire.StrArgs{Op: types.StrConcat, S1: "hello", S2: "world"},
	})))
	require.NotNil(t, resp.Submit)
	require.Equal(t, types.StatusNotFinished, resp.Submit.Status)
	require.NotNil(t, resp.Submit.Ticket)
	ticket := *resp.Submit.Ticket

	got := decodeResp(t, d.HandleFrame(identity, getFrame(ticket, types.WaitUpTo, 1000)))
	require.NotNil(t, got.Get)
	assert.Equal(t, types.StatusSuccess, got.Get.Status)
	assert.Equal(t, types.StrResult("helloworld"), got.Get.Result)

	// Single delivery: the second retrieval sees an unknown ticket.
	again := decodeResp(t, d.HandleFrame(identity, getFrame(ticket, types.NoWait, 0)))
	require.NotNil(t, again.Get)
	assert.Equal(t, types.StatusInvalidInput, again.Get.Status)
}

func TestFindStartScenario(t *testing.T) {
	d, _ := newTestDispatcher(t)
	identity := []byte("dealer-find")
	require.Nil(t, d.HandleFrame(identity, handshake(types.CapFindStart)))

	resp := decodeResp(t, d.HandleFrame(identity, submitFrame(types.Blocking, &wire.SubmitRequest{
		Str: &wire.StrArgs{Op: types.StrFindStart, S1: "abcdef", S2: "cd"},
	})))
	require.NotNil(t, resp.Submit)
	assert.Equal(t, types.StatusSuccess, resp.Submit.Status)
	assert.Equal(t, types.PosResult(2), resp.Submit.Result)

	resp = decodeResp(t, d.HandleFrame(identity, submitFrame(types.Blocking, &wire.SubmitRequest{
		Str: &wire.StrArgs{Op: types.StrFindStart, S1: "abcdef", S2: "zz"},
	})))
	require.NotNil(t, resp.Submit)
	assert.Equal(t, types.StatusSubstrNotFound, resp.Submit.Status)
}

func TestMalformedPayloadFromRegisteredClient(t *testing.T) {
	d, _ := newTestDispatcher(t)
	identity := []byte("dealer-1")
	require.Nil(t, d.HandleFrame(identity, handshake(types.CapAdd)))

	resp := decodeResp(t, d.HandleFrame(identity, []byte{0xff, 0xff, 0xff}))
	require.NotNil(t, resp.Submit)
	assert.Equal(t, types.StatusInvalidInput, resp.Submit.Status)

	// The registration survives a malformed frame.
	_, ok := d.registry.Lookup(identity)
	assert.True(t, ok)
}

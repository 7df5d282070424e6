package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"computeq/internal/wire"
	"computeq/pkg/types"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	r, err := New(Config{Threads: 4}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestSubmitBlockingRunsInline(t *testing.T) {
	r := newTestRunner(t)

	resp := r.Submit(&wire.SubmitRequest{
		Mode: types.Blocking,
		Math: &wire.MathArgs{Op: types.MathAdd, A: 40, B: 2},
	})
	assert.Equal(t, types.StatusSuccess, resp.Status)
	assert.Equal(t, types.IntResult(42), resp.Result)
	assert.Nil(t, resp.Ticket, "blocking submissions never mint a ticket")
	assert.Equal(t, 0, r.Pending(), "blocking submissions never touch the store")
}

func TestSubmitBlockingKernelFailure(t *testing.T) {
	r := newTestRunner(t)

	resp := r.Submit(&wire.SubmitRequest{
		Mode: types.Blocking,
		Math: &wire.MathArgs{Op: types.MathDiv, A: 10, B: 0},
	})
	assert.Equal(t, types.StatusDivByZero, resp.Status)
	assert.Nil(t, resp.Result)
}

func TestSubmitNonBlockingMintsTicket(t *testing.T) {
	r := newTestRunner(t)

	resp := r.Submit(&wire.SubmitRequest{
		Mode: types.NonBlocking,
		Str:  &wire.StrArgs{Op: types.StrConcat, S1: "hello", S2: "world"},
	})
	require.Equal(t, types.StatusNotFinished, resp.Status)
	require.NotNil(t, resp.Ticket)
	assert.Nil(t, resp.Result)

	get := r.Get(&wire.GetRequest{
		Ticket:    *resp.Ticket,
		WaitMode:  types.WaitUpTo,
		TimeoutMS: 5000,
	})
	assert.Equal(t, types.StatusSuccess, get.Status)
	assert.Equal(t, types.StrResult("helloworld"), get.Result)

	// Single delivery: the ticket is gone after the terminal get.
	again := r.Get(&wire.GetRequest{Ticket: *resp.Ticket, WaitMode: types.NoWait})
	assert.Equal(t, types.StatusInvalidInput, again.Status)
}

func TestSubmitRejectsMalformedWithoutTicket(t *testing.T) {
	r := newTestRunner(t)

	cases := []*wire.SubmitRequest{
		{Mode: types.NonBlocking},
		{Mode: types.NonBlocking, Math: &wire.MathArgs{Op: types.MathOp(42)}},
		{Mode: types.NonBlocking, Math: &wire.MathArgs{Op: types.MathAdd}, Str: &wire.StrArgs{Op: types.StrConcat}},
	}
	for _, req := range cases {
		resp := r.Submit(req)
		assert.Equal(t, types.StatusInvalidInput, resp.Status)
		assert.Nil(t, resp.Ticket)
	}
	assert.Equal(t, 0, r.Pending(), "rejected submissions enqueue nothing")
}

// Non-blocking execution must converge to the same terminal state a
// blocking submission of the same request produces.
func TestNonBlockingMatchesBlocking(t *testing.T) {
	r := newTestRunner(t)

	requests := []*wire.SubmitRequest{
		{Math: &wire.MathArgs{Op: types.MathAdd, A: 2147483647, B: 1}},
		{Math: &wire.MathArgs{Op: types.MathDiv, A: 10, B: 0}},
		{Str: &wire.StrArgs{Op: types.StrConcat, S1: "hello", S2: "world"}},
		{Str: &wire.StrArgs{Op: types.StrFindStart, S1: "abcdef", S2: "zz"}},
		{Str: &wire.StrArgs{Op: types.StrFindStart, S1: "abcdef", S2: "cd"}},
	}

	for _, req := range requests {
		blocking := *req
		blocking.Mode = types.Blocking
		want := r.Submit(&blocking)

		nonblocking := *req
		nonblocking.Mode = types.NonBlocking
		submitted := r.Submit(&nonblocking)
		require.NotNil(t, submitted.Ticket)

		got := r.Get(&wire.GetRequest{
			Ticket:    *submitted.Ticket,
			WaitMode:  types.WaitUpTo,
			TimeoutMS: 5000,
		})
		assert.Equal(t, want.Status, got.Status)
		assert.Equal(t, want.Result, got.Result)
	}
}

func TestGetWaitZeroEqualsNoWait(t *testing.T) {
	r := newTestRunner(t)

	// Unknown ticket: both paths report invalid input.
	for _, req := range []*wire.GetRequest{
		{Ticket: 999, WaitMode: types.NoWait},
		{Ticket: 999, WaitMode: types.WaitUpTo, TimeoutMS: 0},
	} {
		resp := r.Get(req)
		assert.Equal(t, types.StatusInvalidInput, resp.Status)
	}
}

func TestGetWaitDeliversQueuedJob(t *testing.T) {
	r, err := New(Config{Threads: 1}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(r.Close)

	// Put a job ahead of the probe on the single worker, so the probe may
	// still be queued when the wait begins.
	slow := r.Submit(&wire.SubmitRequest{
		Mode: types.NonBlocking,
		Str:  &wire.StrArgs{Op: types.StrFindStart, S1: "abcdef", S2: "ab"},
	})
	require.NotNil(t, slow.Ticket)

	probe := r.Submit(&wire.SubmitRequest{
		Mode: types.NonBlocking,
		Math: &wire.MathArgs{Op: types.MathAdd, A: 1, B: 2},
	})
	require.NotNil(t, probe.Ticket)

	// Whether or not the pool got there first, an eventual wait must
	// deliver exactly once.
	get := r.Get(&wire.GetRequest{Ticket: *probe.Ticket, WaitMode: types.WaitUpTo, TimeoutMS: 5000})
	assert.Equal(t, types.StatusSuccess, get.Status)
	assert.Equal(t, types.IntResult(3), get.Result)
}

func TestCloseEmptiesStore(t *testing.T) {
	r, err := New(Config{Threads: 2}, nil, nil)
	require.NoError(t, err)

	resp := r.Submit(&wire.SubmitRequest{
		Mode: types.NonBlocking,
		Math: &wire.MathArgs{Op: types.MathMul, A: 6, B: 7},
	})
	require.NotNil(t, resp.Ticket)

	// Let the pool publish before shutdown so no notification is lost.
	got := r.Get(&wire.GetRequest{Ticket: *resp.Ticket, WaitMode: types.WaitUpTo, TimeoutMS: 5000})
	require.Equal(t, types.StatusSuccess, got.Status)

	r.Close()
	assert.Equal(t, 0, r.Pending())
}

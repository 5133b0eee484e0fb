package gate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchgate/patchgate/policy"
	"github.com/patchgate/patchgate/service/gate"
)

func TestAutoApproveResolvesPending(t *testing.T) {
	svc, _ := newGate(t, policy.ModeProd)
	ctx := context.Background()

	stop := gate.AutoApprove(ctx, svc, "bot", 5*time.Millisecond)
	defer stop()

	result, err := svc.Request(ctx, policy.CapabilityWrite, writePayload())
	require.NoError(t, err)
	require.Equal(t, gate.ResultPending, result.Status)

	record, err := gate.WaitForDecision(ctx, svc, result.ApprovalID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, gate.StatusApproved, record.Status)
	assert.Equal(t, "bot", record.ResolvedBy)
}

func TestAutoRejectResolvesPending(t *testing.T) {
	svc, _ := newGate(t, policy.ModeProd)
	ctx := context.Background()

	stop := gate.AutoReject(ctx, svc, "bot", 5*time.Millisecond)
	defer stop()

	result, err := svc.Request(ctx, policy.CapabilityWrite, writePayload())
	require.NoError(t, err)

	record, err := gate.WaitForDecision(ctx, svc, result.ApprovalID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, gate.StatusDenied, record.Status)
}

func TestWaitForDecisionTimeout(t *testing.T) {
	svc, _ := newGate(t, policy.ModeProd)
	ctx := context.Background()

	result, err := svc.Request(ctx, policy.CapabilityWrite, writePayload())
	require.NoError(t, err)

	_, err = gate.WaitForDecision(ctx, svc, result.ApprovalID, 50*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForDecisionUnknownID(t *testing.T) {
	svc, _ := newGate(t, policy.ModeProd)

	_, err := gate.WaitForDecision(context.Background(), svc, "missing", 100*time.Millisecond)
	assert.ErrorIs(t, err, gate.ErrNotFound)
}

package gate_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchgate/patchgate/policy"
	"github.com/patchgate/patchgate/service/gate"
	qmem "github.com/patchgate/patchgate/service/messaging/memory"
	"github.com/patchgate/patchgate/service/patch"
)

const helloPatch = `--- /dev/null
+++ b/a.txt
@@ -0,0 +1 @@
+hello
`

func newGate(t *testing.T, mode policy.Mode, options ...gate.Option) (*gate.Service, string) {
	t.Helper()
	engine, err := policy.NewEngine(policy.WithMode(mode))
	require.NoError(t, err)
	root := t.TempDir()
	applicator, err := patch.New(root)
	require.NoError(t, err)
	return gate.New(engine, applicator, options...), root
}

func writePayload() *gate.Payload {
	return &gate.Payload{Write: &gate.WritePayload{
		Diffs:   []patch.Diff{{Path: "a.txt", Patch: helloPatch}},
		Message: "init",
	}}
}

func TestRequestAutoApplies(t *testing.T) {
	svc, root := newGate(t, policy.ModePlayground)

	result, err := svc.Request(context.Background(), policy.CapabilityWrite, writePayload())
	require.NoError(t, err)
	assert.Equal(t, gate.ResultApplied, result.Status)
	assert.Len(t, result.CommitSha, 64)
	assert.Empty(t, result.ApprovalID)

	data, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	records, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records, "auto execution leaves no approval record")
}

func TestRequestReviewThenApprove(t *testing.T) {
	svc, root := newGate(t, policy.ModeProd)

	result, err := svc.Request(context.Background(), policy.CapabilityWrite, writePayload())
	require.NoError(t, err)
	require.Equal(t, gate.ResultPending, result.Status)
	require.NotEmpty(t, result.ApprovalID)

	_, err = os.Stat(filepath.Join(root, "a.txt"))
	assert.True(t, os.IsNotExist(err), "no workspace mutation before approval")

	record, err := svc.Resolve(context.Background(), result.ApprovalID, gate.OutcomeApprove, "ops1")
	require.NoError(t, err)
	assert.Equal(t, gate.StatusApproved, record.Status)
	assert.Equal(t, "ops1", record.ResolvedBy)
	require.NotNil(t, record.ResolvedAt)
	assert.Nil(t, record.Payload, "payload erased on resolution")

	data, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	stored, err := svc.Get(context.Background(), result.ApprovalID)
	require.NoError(t, err)
	assert.Nil(t, stored.Payload)
	assert.Equal(t, gate.StatusApproved, stored.Status)
}

func TestRequestReviewThenDeny(t *testing.T) {
	svc, root := newGate(t, policy.ModeProd)

	result, err := svc.Request(context.Background(), policy.CapabilityWrite, writePayload())
	require.NoError(t, err)

	record, err := svc.Resolve(context.Background(), result.ApprovalID, gate.OutcomeDeny, "ops1")
	require.NoError(t, err)
	assert.Equal(t, gate.StatusDenied, record.Status)
	assert.Nil(t, record.Payload)

	_, err = os.Stat(filepath.Join(root, "a.txt"))
	assert.True(t, os.IsNotExist(err), "denied request never touches the workspace")
}

func TestRequestForbidden(t *testing.T) {
	svc, _ := newGate(t, policy.ModeProd)
	require.NoError(t, svc.Policy().SetOverrides(map[policy.Capability]policy.Decision{
		policy.CapabilityDeploy: policy.DecisionForbid,
	}))

	_, err := svc.Request(context.Background(), policy.CapabilityDeploy, nil)
	var forbidden *gate.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, policy.CapabilityDeploy, forbidden.Capability)
	assert.Equal(t, policy.ModeProd, forbidden.Mode)

	records, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records, "forbidden requests leave no record")
}

func TestRequestMalformedPayload(t *testing.T) {
	testCases := []struct {
		name    string
		payload *gate.Payload
	}{
		{name: "nil payload", payload: nil},
		{name: "missing write branch", payload: &gate.Payload{}},
		{name: "empty diff list", payload: &gate.Payload{Write: &gate.WritePayload{Message: "m"}}},
		{name: "missing message", payload: &gate.Payload{Write: &gate.WritePayload{
			Diffs: []patch.Diff{{Path: "a.txt", Patch: helloPatch}},
		}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := newGate(t, policy.ModeProd)
			_, err := svc.Request(context.Background(), policy.CapabilityWrite, tc.payload)
			assert.ErrorIs(t, err, gate.ErrMalformedPayload)

			records, err := svc.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, records, "validation happens before any state mutation")
		})
	}
}

func TestRequestNoEffectHandler(t *testing.T) {
	svc, _ := newGate(t, policy.ModePlayground)

	// exec is auto under playground but has no effect handler wired.
	_, err := svc.Request(context.Background(), policy.CapabilityExec, nil)
	assert.ErrorIs(t, err, gate.ErrNoEffectHandler)
}

func TestResolveUnknownAndDoubleResolution(t *testing.T) {
	svc, _ := newGate(t, policy.ModeProd)

	_, err := svc.Resolve(context.Background(), "no-such-id", gate.OutcomeApprove, "ops1")
	assert.ErrorIs(t, err, gate.ErrNotFound)

	result, err := svc.Request(context.Background(), policy.CapabilityWrite, writePayload())
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), result.ApprovalID, gate.OutcomeDeny, "ops1")
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), result.ApprovalID, gate.OutcomeApprove, "ops2")
	assert.ErrorIs(t, err, gate.ErrNotPending)
}

func TestResolveRaceSingleWinner(t *testing.T) {
	svc, _ := newGate(t, policy.ModeProd)
	result, err := svc.Request(context.Background(), policy.CapabilityWrite, writePayload())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Resolve(context.Background(), result.ApprovalID, gate.OutcomeDeny, "ops")
		}(i)
	}
	wg.Wait()

	var successes, notPending int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, gate.ErrNotPending):
			notPending++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes, "exactly one resolution wins")
	assert.Equal(t, 1, notPending, "the loser sees not-pending, never a silent no-op")
}

func TestApproveFailureKeepsRecordPending(t *testing.T) {
	svc, root := newGate(t, policy.ModeProd)

	stale := `--- a/b.txt
+++ b/b.txt
@@ -1 +1 @@
-expected base
+patched
`
	payload := &gate.Payload{Write: &gate.WritePayload{
		Diffs:   []patch.Diff{{Path: "b.txt", Patch: stale}},
		Message: "stale edit",
	}}
	result, err := svc.Request(context.Background(), policy.CapabilityWrite, payload)
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), result.ApprovalID, gate.OutcomeApprove, "ops1")
	var rejected *patch.RejectedError
	require.ErrorAs(t, err, &rejected)

	record, err := svc.Get(context.Background(), result.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, gate.StatusPending, record.Status, "failed effect leaves the record pending")
	assert.NotNil(t, record.Payload, "payload retained so the operator can retry")

	// Fix the underlying cause and retry the same resolution.
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("expected base\n"), 0o644))
	record, err = svc.Resolve(context.Background(), result.ApprovalID, gate.OutcomeApprove, "ops1")
	require.NoError(t, err)
	assert.Equal(t, gate.StatusApproved, record.Status)

	data, err := os.ReadFile(filepath.Join(root, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "patched\n", string(data))
}

func TestGetReturnsIsolatedPayload(t *testing.T) {
	svc, root := newGate(t, policy.ModeProd)
	ctx := context.Background()

	result, err := svc.Request(ctx, policy.CapabilityWrite, writePayload())
	require.NoError(t, err)

	copy1, err := svc.Get(ctx, result.ApprovalID)
	require.NoError(t, err)
	require.NotNil(t, copy1.Payload)
	copy1.Payload.Write.Diffs[0].Patch = "tampered"
	copy1.Payload.Write.Message = "tampered"

	copy2, err := svc.Get(ctx, result.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, helloPatch, copy2.Payload.Write.Diffs[0].Patch,
		"mutating a returned record must not touch gate-owned state")
	assert.Equal(t, "init", copy2.Payload.Write.Message)

	// the stored effect, not the tampered copy, is what gets applied
	record, err := svc.Resolve(ctx, result.ApprovalID, gate.OutcomeApprove, "ops1")
	require.NoError(t, err)
	assert.Equal(t, gate.StatusApproved, record.Status)

	data, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestListFilterAndOrder(t *testing.T) {
	svc, _ := newGate(t, policy.ModeProd)

	var ids []string
	for i := 0; i < 3; i++ {
		result, err := svc.Request(context.Background(), policy.CapabilityWrite, writePayload())
		require.NoError(t, err)
		ids = append(ids, result.ApprovalID)
	}
	_, err := svc.Resolve(context.Background(), ids[1], gate.OutcomeDeny, "ops1")
	require.NoError(t, err)

	all, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, record := range all {
		assert.Equal(t, ids[i], record.ID, "creation order is preserved")
	}

	pending, err := svc.List(context.Background(), gate.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[0], pending[0].ID)
	assert.Equal(t, ids[2], pending[1].ID)

	denied, err := svc.List(context.Background(), gate.StatusDenied)
	require.NoError(t, err)
	require.Len(t, denied, 1)
	assert.Equal(t, ids[1], denied[0].ID)
}

func TestRequestsProceedWithoutEventConsumer(t *testing.T) {
	// a full event queue with nobody consuming must never stall the gate
	queue := qmem.NewQueue[gate.Event](qmem.Config{QueueBuffer: 1})
	svc, _ := newGate(t, policy.ModeProd, gate.WithQueue(queue))
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var ids []string
		for i := 0; i < 3; i++ {
			result, err := svc.Request(ctx, policy.CapabilityWrite, writePayload())
			require.NoError(t, err)
			ids = append(ids, result.ApprovalID)
		}
		for _, id := range ids {
			_, err := svc.Resolve(ctx, id, gate.OutcomeDeny, "ops1")
			require.NoError(t, err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("gate blocked on the event queue")
	}

	denied, err := svc.List(ctx, gate.StatusDenied)
	require.NoError(t, err)
	assert.Len(t, denied, 3)
}

func TestEventsPublished(t *testing.T) {
	svc, _ := newGate(t, policy.ModeProd)
	ctx := context.Background()

	result, err := svc.Request(ctx, policy.CapabilityWrite, writePayload())
	require.NoError(t, err)

	msg, err := svc.Queue().Consume(ctx)
	require.NoError(t, err)
	created := msg.T()
	assert.Equal(t, gate.TopicRecordCreated, created.Topic)
	assert.Equal(t, result.ApprovalID, created.Record.ID)
	require.NoError(t, msg.Ack())

	_, err = svc.Resolve(ctx, result.ApprovalID, gate.OutcomeApprove, "ops1")
	require.NoError(t, err)

	msg, err = svc.Queue().Consume(ctx)
	require.NoError(t, err)
	resolved := msg.T()
	assert.Equal(t, gate.TopicRecordResolved, resolved.Topic)
	assert.Equal(t, gate.StatusApproved, resolved.Record.Status)
	assert.Nil(t, resolved.Record.Payload)
	require.NoError(t, msg.Ack())
}

package gate

import (
	"context"
	"time"
)

// DecisionFunc decides what to do with a pending record.
// Return (OutcomeApprove, true) to approve, (OutcomeDeny, true) to deny, or
// ok=false to leave the record pending.
type DecisionFunc func(r *Record) (outcome Outcome, ok bool)

// AutoDecider starts a goroutine that polls pending records and applies fn to
// every one.  It returns stop() — call it (or cancel ctx) to exit.  Intended
// for tests and unattended operation, not as a replacement for a human
// approver.
func AutoDecider(ctx context.Context, svc *Service, actor string, fn DecisionFunc, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				pending, _ := svc.List(ctx, StatusPending)
				for _, record := range pending {
					if outcome, ok := fn(record); ok {
						_, _ = svc.Resolve(ctx, record.ID, outcome, actor)
					}
				}
			}
		}
	}()
	return func() { close(done) }
}

// AutoApprove approves every pending record as actor.
func AutoApprove(ctx context.Context, svc *Service, actor string, interval time.Duration) func() {
	return AutoDecider(ctx, svc, actor,
		func(*Record) (Outcome, bool) { return OutcomeApprove, true }, interval)
}

// AutoReject denies every pending record as actor.
func AutoReject(ctx context.Context, svc *Service, actor string, interval time.Duration) func() {
	return AutoDecider(ctx, svc, actor,
		func(*Record) (Outcome, bool) { return OutcomeDeny, true }, interval)
}

// WaitForDecision blocks until the record with id leaves pending or the
// timeout elapses, polling so that any number of callers can wait on the same
// record.
func WaitForDecision(ctx context.Context, svc *Service, id string, timeout time.Duration) (*Record, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		record, err := svc.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if record.Status != StatusPending {
			return record, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

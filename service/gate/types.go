package gate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patchgate/patchgate/policy"
	"github.com/patchgate/patchgate/service/patch"
)

// Status is the lifecycle state of an approval record.  A record is created
// pending and transitions exactly once to approved or denied.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// Outcome is a human resolution verdict.
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeDeny    Outcome = "deny"
)

// ParseOutcome validates a resolution verdict.
func ParseOutcome(value string) (Outcome, error) {
	switch candidate := Outcome(strings.ToLower(strings.TrimSpace(value))); candidate {
	case OutcomeApprove, OutcomeDeny:
		return candidate, nil
	default:
		return "", fmt.Errorf("gate: invalid outcome %q", value)
	}
}

// WritePayload is the effect description for the write capability: a batch of
// unified diffs plus a commit message.
type WritePayload struct {
	Diffs   []patch.Diff `json:"diffs"`
	Message string       `json:"message"`
}

// Payload is a tagged variant keyed by capability.  Exactly one branch is
// populated; the resolver dispatches over the branches exhaustively so a new
// capability cannot silently slip through approval.
type Payload struct {
	Write *WritePayload `json:"write,omitempty"`
}

// IsEmpty reports whether no branch is populated.
func (p *Payload) IsEmpty() bool {
	return p == nil || p.Write == nil
}

// Record is one durable approval request.  Payload is non-nil iff Status is
// pending.
type Record struct {
	ID         string            `json:"id"`
	Capability policy.Capability `json:"capability"`
	Payload    *Payload          `json:"payload,omitempty"`
	Status     Status            `json:"status"`
	CreatedAt  time.Time         `json:"createdAt"`
	ResolvedAt *time.Time        `json:"resolvedAt,omitempty"`
	ResolvedBy string            `json:"resolvedBy,omitempty"`
}

func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.ResolvedAt != nil {
		resolvedAt := *r.ResolvedAt
		out.ResolvedAt = &resolvedAt
	}
	if r.Payload != nil {
		payload := Payload{}
		if r.Payload.Write != nil {
			write := *r.Payload.Write
			write.Diffs = append([]patch.Diff(nil), r.Payload.Write.Diffs...)
			payload.Write = &write
		}
		out.Payload = &payload
	}
	return &out
}

// ResultStatus describes how a request concluded synchronously.
type ResultStatus string

const (
	ResultApplied ResultStatus = "applied"
	ResultPending ResultStatus = "pending"
)

// Result is the synchronous outcome of Request for auto and review
// decisions; forbid surfaces as *ForbiddenError instead.
type Result struct {
	Status     ResultStatus `json:"status"`
	CommitSha  string       `json:"commitSha,omitempty"`
	ApprovalID string       `json:"approvalId,omitempty"`
}

// Event is published on the gate queue when records are created or resolved.
type Event struct {
	Topic  string  `json:"topic"`
	Record *Record `json:"record"`
}

// Event topics.
const (
	TopicRecordCreated  = "approval.created"
	TopicRecordResolved = "approval.resolved"
)

var (
	// ErrNotFound is returned by Resolve/Get for an unknown record id.
	ErrNotFound = errors.New("gate: approval record not found")

	// ErrNotPending is returned when resolving a record that has already
	// been resolved; double resolution is rejected, never silently
	// accepted.
	ErrNotPending = errors.New("gate: approval record is not pending")

	// ErrMalformedPayload is returned when a request payload does not
	// carry the effect its capability requires.  Raised before any state
	// mutation.
	ErrMalformedPayload = errors.New("gate: malformed payload")

	// ErrNoEffectHandler is returned when a capability has no effect
	// handler wired; such capabilities are decision-only hooks for now.
	ErrNoEffectHandler = errors.New("gate: no effect handler for capability")
)

// ForbiddenError reports a request refused by policy.  No record is created;
// the request is not retryable without a mode or override change.
type ForbiddenError struct {
	Capability policy.Capability
	Mode       policy.Mode
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("gate: capability %s is forbidden under mode %s", e.Capability, e.Mode)
}

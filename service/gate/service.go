package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/patchgate/patchgate/audit"
	"github.com/patchgate/patchgate/internal/clock"
	"github.com/patchgate/patchgate/internal/idgen"
	"github.com/patchgate/patchgate/policy"
	"github.com/patchgate/patchgate/service/dao"
	"github.com/patchgate/patchgate/service/dao/store"
	"github.com/patchgate/patchgate/service/messaging"
	qmem "github.com/patchgate/patchgate/service/messaging/memory"
	"github.com/patchgate/patchgate/service/patch"
	"github.com/patchgate/patchgate/tracing"
)

// Service orchestrates capability requests: policy decision, effect
// execution for auto decisions, and the pending-record lifecycle for review
// decisions.  It exclusively owns the approval record table.
type Service struct {
	engine     *policy.Engine
	applicator *patch.Applicator
	records    dao.Service[string, Record]
	events     messaging.Queue[Event]
	auditor    *audit.Writer
	logger     *zap.Logger

	// mu serializes record transitions so that of two racing Resolve
	// calls exactly one observes pending.
	mu sync.Mutex

	now   func() time.Time
	newID func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithRecordStore replaces the default in-memory record store, e.g. with the
// file-backed one for durability across restarts.
func WithRecordStore(records dao.Service[string, Record]) Option {
	return func(s *Service) { s.records = records }
}

// WithQueue replaces the default event queue.
func WithQueue(queue messaging.Queue[Event]) Option {
	return func(s *Service) { s.events = queue }
}

// WithAuditor wires an audit trail writer.
func WithAuditor(auditor *audit.Writer) Option {
	return func(s *Service) { s.auditor = auditor }
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger.Named("gate") }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a gate around the given policy engine and applicator.
func New(engine *policy.Engine, applicator *patch.Applicator, options ...Option) *Service {
	s := &Service{
		engine:     engine,
		applicator: applicator,
		records:    store.NewMemoryStore[string, Record](func(r *Record) string { return r.ID }),
		events:     qmem.NewQueue[Event](qmem.DefaultConfig()),
		logger:     zap.NewNop(),
		now:        clock.Now,
		newID:      idgen.New,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Request asks to exercise capability with the given payload.  Depending on
// policy the effect is executed immediately (Result.Status applied), parked
// for review (pending, with the approval id), or refused (*ForbiddenError,
// no trace beyond audit/log).
func (s *Service) Request(ctx context.Context, capability policy.Capability, payload *Payload) (result *Result, err error) {
	ctx, span := tracing.StartSpan(ctx, "gate.request", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()

	decision, err := s.engine.Decide(capability)
	if err != nil {
		return nil, err
	}
	span.WithAttributes(map[string]string{
		"capability": string(capability),
		"decision":   string(decision),
	})

	if decision == policy.DecisionForbid {
		mode := s.engine.Snapshot().Mode
		s.logger.Info("request forbidden",
			zap.String("capability", string(capability)),
			zap.String("mode", string(mode)))
		s.audit(audit.Event{
			Type:       audit.TypeRequest,
			Capability: string(capability),
			Decision:   string(decision),
		})
		return nil, &ForbiddenError{Capability: capability, Mode: mode}
	}

	// Validate before any state mutation; auto and review both need an
	// executable payload.
	if err = validatePayload(capability, payload); err != nil {
		return nil, err
	}

	switch decision {
	case policy.DecisionAuto:
		commit, execErr := s.execute(ctx, capability, payload)
		if execErr != nil {
			err = execErr
			return nil, err
		}
		s.logger.Info("request applied",
			zap.String("capability", string(capability)),
			zap.String("commit_sha", commit.CommitSha))
		s.audit(audit.Event{
			Type:       audit.TypeRequest,
			Capability: string(capability),
			Decision:   string(decision),
			CommitSha:  commit.CommitSha,
		})
		return &Result{Status: ResultApplied, CommitSha: commit.CommitSha}, nil

	case policy.DecisionReview:
		record := &Record{
			ID:         s.newID(),
			Capability: capability,
			Payload:    payload,
			Status:     StatusPending,
			CreatedAt:  s.now().UTC(),
		}
		if err = s.records.Save(ctx, record); err != nil {
			return nil, fmt.Errorf("gate: save approval record: %w", err)
		}
		s.publish(ctx, Event{Topic: TopicRecordCreated, Record: record.clone()})
		s.logger.Info("request pending approval",
			zap.String("capability", string(capability)),
			zap.String("record_id", record.ID))
		s.audit(audit.Event{
			Type:       audit.TypeRequest,
			Capability: string(capability),
			Decision:   string(decision),
			RecordID:   record.ID,
		})
		return &Result{Status: ResultPending, ApprovalID: record.ID}, nil

	default:
		return nil, fmt.Errorf("gate: unhandled decision %q", decision)
	}
}

// Resolve applies a human verdict to a pending record.  On approve the stored
// effect is executed first; if execution fails the record deliberately stays
// pending (payload retained) so the operator can fix the cause and retry.  On
// success or deny the record transitions exactly once and its payload is
// erased.
func (s *Service) Resolve(ctx context.Context, id string, outcome Outcome, actor string) (resolved *Record, err error) {
	ctx, span := tracing.StartSpan(ctx, "gate.resolve", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()

	if _, err = ParseOutcome(string(outcome)); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.records.Load(ctx, id)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) || errors.Is(err, dao.ErrInvalidID) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("gate: load approval record: %w", err)
	}
	if record.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotPending, id, record.Status)
	}

	var commitSha string
	if outcome == OutcomeApprove {
		commit, execErr := s.execute(ctx, record.Capability, record.Payload)
		if execErr != nil {
			s.logger.Warn("approved effect failed, record stays pending",
				zap.String("record_id", id),
				zap.Error(execErr))
			s.audit(audit.Event{
				Type:     audit.TypeResolve,
				RecordID: id,
				Actor:    actor,
				Error:    execErr.Error(),
			})
			err = execErr
			return nil, err
		}
		commitSha = commit.CommitSha
	}

	updated := record.clone()
	updated.Status = StatusApproved
	if outcome == OutcomeDeny {
		updated.Status = StatusDenied
	}
	resolvedAt := s.now().UTC()
	updated.ResolvedAt = &resolvedAt
	updated.ResolvedBy = actor
	updated.Payload = nil

	if err = s.records.Save(ctx, updated); err != nil {
		return nil, fmt.Errorf("gate: save resolved record: %w", err)
	}

	s.publish(ctx, Event{Topic: TopicRecordResolved, Record: updated.clone()})
	s.logger.Info("approval resolved",
		zap.String("record_id", id),
		zap.String("status", string(updated.Status)),
		zap.String("actor", actor))
	s.audit(audit.Event{
		Type:       audit.TypeResolve,
		Capability: string(updated.Capability),
		RecordID:   id,
		Actor:      actor,
		Decision:   string(updated.Status),
		CommitSha:  commitSha,
	})
	return updated.clone(), nil
}

// Get returns a copy of the record with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	record, err := s.records.Load(ctx, id)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) || errors.Is(err, dao.ErrInvalidID) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return record.clone(), nil
}

// List returns record copies in stable store order, optionally filtered by
// status.
func (s *Service) List(ctx context.Context, statuses ...Status) ([]*Record, error) {
	all, err := s.records.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(all))
	for _, record := range all {
		if len(statuses) > 0 && !statusIn(record.Status, statuses) {
			continue
		}
		out = append(out, record.clone())
	}
	return out, nil
}

// Queue exposes the gate event queue for consumers.
func (s *Service) Queue() messaging.Queue[Event] {
	return s.events
}

// Policy exposes the engine for transport-layer snapshot/override endpoints.
func (s *Service) Policy() *policy.Engine {
	return s.engine
}

// execute dispatches the payload variant for capability.  This is the single
// code path that mutates the workspace.
func (s *Service) execute(ctx context.Context, capability policy.Capability, payload *Payload) (*patch.CommitResult, error) {
	switch capability {
	case policy.CapabilityWrite:
		return s.applicator.Apply(ctx, payload.Write.Diffs, payload.Write.Message)
	case policy.CapabilityRead, policy.CapabilityExec, policy.CapabilityNet,
		policy.CapabilitySecrets, policy.CapabilityDNS, policy.CapabilityDeploy:
		return nil, fmt.Errorf("%w: %s", ErrNoEffectHandler, capability)
	default:
		return nil, fmt.Errorf("%w: %s", policy.ErrUnknownCapability, capability)
	}
}

func validatePayload(capability policy.Capability, payload *Payload) error {
	switch capability {
	case policy.CapabilityWrite:
		if payload == nil || payload.Write == nil {
			return fmt.Errorf("%w: write requires a diffs payload", ErrMalformedPayload)
		}
		if len(payload.Write.Diffs) == 0 {
			return fmt.Errorf("%w: empty diff list", ErrMalformedPayload)
		}
		if payload.Write.Message == "" {
			return fmt.Errorf("%w: missing message", ErrMalformedPayload)
		}
		return nil
	case policy.CapabilityRead, policy.CapabilityExec, policy.CapabilityNet,
		policy.CapabilitySecrets, policy.CapabilityDNS, policy.CapabilityDeploy:
		return fmt.Errorf("%w: %s", ErrNoEffectHandler, capability)
	default:
		return fmt.Errorf("%w: %s", policy.ErrUnknownCapability, capability)
	}
}

// publish never blocks: Resolve publishes while holding s.mu, and a full
// queue with no consumer must not stall request handling.  A dropped event is
// logged and the lifecycle proceeds.
func (s *Service) publish(ctx context.Context, event Event) {
	ok, err := s.events.TryPublish(ctx, &event)
	if err != nil {
		s.logger.Warn("event publish failed", zap.String("topic", event.Topic), zap.Error(err))
		return
	}
	if !ok {
		s.logger.Warn("event dropped, queue full", zap.String("topic", event.Topic))
	}
}

func (s *Service) audit(event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Append(event); err != nil {
		s.logger.Warn("audit append failed", zap.Error(err))
	}
}

func statusIn(status Status, statuses []Status) bool {
	for _, candidate := range statuses {
		if status == candidate {
			return true
		}
	}
	return false
}

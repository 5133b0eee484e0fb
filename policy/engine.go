package policy

import (
	"fmt"
	"sync"
)

// Engine holds the process-wide policy state: the active mode and the
// per-capability override map.  All methods are safe for concurrent use;
// Decide observes the most recently completed SetMode/SetOverrides call.
//
// Engines are constructed, not ambient: callers inject an *Engine where they
// need decisions so tests can run isolated instances side by side.
type Engine struct {
	mu        sync.RWMutex
	mode      Mode
	overrides map[Capability]Decision
}

// Option customizes a new Engine.
type Option func(*Engine) error

// WithMode sets the initial operating mode.
func WithMode(mode Mode) Option {
	return func(e *Engine) error {
		parsed, err := ParseMode(string(mode))
		if err != nil {
			return err
		}
		e.mode = parsed
		return nil
	}
}

// WithOverrides seeds initial capability overrides.
func WithOverrides(overrides map[Capability]Decision) Option {
	return func(e *Engine) error {
		return e.merge(overrides)
	}
}

// NewEngine creates an engine in ModeDev unless WithMode is supplied.  An
// incomplete default table is reported here as a configuration error so it
// can never surface per-request.
func NewEngine(options ...Option) (*Engine, error) {
	if err := verifyDefaults(); err != nil {
		return nil, err
	}
	engine := &Engine{
		mode:      ModeDev,
		overrides: make(map[Capability]Decision),
	}
	for _, option := range options {
		if err := option(engine); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

// SetMode replaces the active mode.  Existing overrides are kept.
func (e *Engine) SetMode(mode Mode) error {
	parsed, err := ParseMode(string(mode))
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = parsed
	return nil
}

// SetOverrides merges the supplied entries into the override map.  Only the
// given capabilities are touched; the rest keep prior overrides or fall back
// to mode defaults.  All entries are validated before any is applied.
func (e *Engine) SetOverrides(overrides map[Capability]Decision) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.merge(overrides)
}

func (e *Engine) merge(overrides map[Capability]Decision) error {
	validated := make(map[Capability]Decision, len(overrides))
	for capability, decision := range overrides {
		parsedCap, err := ParseCapability(string(capability))
		if err != nil {
			return err
		}
		parsedDecision, err := ParseDecision(string(decision))
		if err != nil {
			return fmt.Errorf("override for %s: %w", parsedCap, err)
		}
		validated[parsedCap] = parsedDecision
	}
	for capability, decision := range validated {
		e.overrides[capability] = decision
	}
	return nil
}

// ResetOverrides clears the entire override map, reverting every capability
// to its mode default.
func (e *Engine) ResetOverrides() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.overrides = make(map[Capability]Decision)
}

// Decide returns the override for capability when present, otherwise the
// default for the active mode.
func (e *Engine) Decide(capability Capability) (Decision, error) {
	parsed, err := ParseCapability(string(capability))
	if err != nil {
		return "", err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if decision, ok := e.overrides[parsed]; ok {
		return decision, nil
	}
	return defaults[e.mode][parsed], nil
}

// Snapshot is a read-only view of the engine state for introspection.
type Snapshot struct {
	Mode      Mode                    `json:"mode"`
	Overrides map[Capability]Decision `json:"overrides"`
}

// Snapshot returns a copy of the current mode and overrides.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	overrides := make(map[Capability]Decision, len(e.overrides))
	for capability, decision := range e.overrides {
		overrides[capability] = decision
	}
	return Snapshot{Mode: e.mode, Overrides: overrides}
}

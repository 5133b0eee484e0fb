package policy

import (
	"errors"
	"fmt"
	"strings"
)

// Capability names a class of side effect an agent may request.  The set is
// closed; consumers are expected to switch exhaustively over it.
type Capability string

const (
	CapabilityRead    Capability = "read"
	CapabilityWrite   Capability = "write"
	CapabilityExec    Capability = "exec"
	CapabilityNet     Capability = "net"
	CapabilitySecrets Capability = "secrets"
	CapabilityDNS     Capability = "dns"
	CapabilityDeploy  Capability = "deploy"
)

// Decision is the outcome of a capability check.  The three values are
// incomparable outcomes, not a severity scale.
type Decision string

const (
	DecisionAuto   Decision = "auto"   // execute immediately
	DecisionReview Decision = "review" // hold for human approval
	DecisionForbid Decision = "forbid" // reject, never executable
)

// Mode is the global operating posture selecting default decisions per
// capability.  Exactly one mode is active process-wide at a time.
type Mode string

const (
	ModePlayground Mode = "playground"
	ModeDev        Mode = "dev"
	ModeTrusted    Mode = "trusted"
	ModeProd       Mode = "prod"
)

var (
	// ErrUnknownCapability is returned when a capability is not in the
	// enumerated set.
	ErrUnknownCapability = errors.New("policy: unknown capability")

	// ErrInvalidMode is returned for a mode outside the enumerated set.
	ErrInvalidMode = errors.New("policy: invalid mode")

	// ErrInvalidDecision is returned for a decision outside the enumerated
	// set, typically from an override file or API payload.
	ErrInvalidDecision = errors.New("policy: invalid decision")
)

// capabilities in fixed declaration order, used for deterministic snapshots
// and table verification.
var capabilities = []Capability{
	CapabilityRead,
	CapabilityWrite,
	CapabilityExec,
	CapabilityNet,
	CapabilitySecrets,
	CapabilityDNS,
	CapabilityDeploy,
}

var modes = []Mode{ModePlayground, ModeDev, ModeTrusted, ModeProd}

// Capabilities returns the closed capability set in declaration order.
func Capabilities() []Capability {
	out := make([]Capability, len(capabilities))
	copy(out, capabilities)
	return out
}

// Modes returns the enumerated modes in declaration order.
func Modes() []Mode {
	out := make([]Mode, len(modes))
	copy(out, modes)
	return out
}

// ParseCapability normalizes and validates a capability name.
func ParseCapability(value string) (Capability, error) {
	candidate := Capability(strings.ToLower(strings.TrimSpace(value)))
	for _, c := range capabilities {
		if c == candidate {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCapability, value)
}

// ParseDecision normalizes and validates a decision name.
func ParseDecision(value string) (Decision, error) {
	switch candidate := Decision(strings.ToLower(strings.TrimSpace(value))); candidate {
	case DecisionAuto, DecisionReview, DecisionForbid:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, value)
	}
}

// ParseMode normalizes and validates a mode name.
func ParseMode(value string) (Mode, error) {
	switch candidate := Mode(strings.ToLower(strings.TrimSpace(value))); candidate {
	case ModePlayground, ModeDev, ModeTrusted, ModeProd:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, value)
	}
}

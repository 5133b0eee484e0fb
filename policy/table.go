package policy

import (
	"fmt"
)

// defaults is the mode×capability decision table.  The assignments are an
// operational choice: playground trades safety for iteration speed, prod
// holds every mutation for review and refuses secrets access outright.
//
// The table must be total.  verifyDefaults runs at engine construction and
// turns any gap into a startup failure rather than an undefined per-request
// outcome.
var defaults = map[Mode]map[Capability]Decision{
	ModePlayground: {
		CapabilityRead:    DecisionAuto,
		CapabilityWrite:   DecisionAuto,
		CapabilityExec:    DecisionAuto,
		CapabilityNet:     DecisionAuto,
		CapabilitySecrets: DecisionReview,
		CapabilityDNS:     DecisionAuto,
		CapabilityDeploy:  DecisionReview,
	},
	ModeDev: {
		CapabilityRead:    DecisionAuto,
		CapabilityWrite:   DecisionAuto,
		CapabilityExec:    DecisionReview,
		CapabilityNet:     DecisionAuto,
		CapabilitySecrets: DecisionReview,
		CapabilityDNS:     DecisionReview,
		CapabilityDeploy:  DecisionReview,
	},
	ModeTrusted: {
		CapabilityRead:    DecisionAuto,
		CapabilityWrite:   DecisionReview,
		CapabilityExec:    DecisionReview,
		CapabilityNet:     DecisionAuto,
		CapabilitySecrets: DecisionReview,
		CapabilityDNS:     DecisionReview,
		CapabilityDeploy:  DecisionReview,
	},
	ModeProd: {
		CapabilityRead:    DecisionAuto,
		CapabilityWrite:   DecisionReview,
		CapabilityExec:    DecisionReview,
		CapabilityNet:     DecisionReview,
		CapabilitySecrets: DecisionForbid,
		CapabilityDNS:     DecisionReview,
		CapabilityDeploy:  DecisionReview,
	},
}

// verifyDefaults checks the table is total: every enumerated mode has an
// entry for every enumerated capability, and every entry is a valid decision.
func verifyDefaults() error {
	for _, mode := range modes {
		row, ok := defaults[mode]
		if !ok {
			return fmt.Errorf("policy: default table has no row for mode %q", mode)
		}
		for _, capability := range capabilities {
			decision, ok := row[capability]
			if !ok {
				return fmt.Errorf("policy: default table gap at (%s, %s)", mode, capability)
			}
			switch decision {
			case DecisionAuto, DecisionReview, DecisionForbid:
			default:
				return fmt.Errorf("policy: default table holds invalid decision %q at (%s, %s)", decision, mode, capability)
			}
		}
	}
	return nil
}

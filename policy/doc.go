// Package policy decides what happens when an agent asks to exercise a
// capability: execute immediately, hold for human review, or refuse.  The
// decision comes from a total mode×capability default table layered with an
// explicit per-capability override map.  The package holds no knowledge of
// effects; it only classifies requests.
package policy

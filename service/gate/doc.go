// Package gate mediates side-effecting capability requests.  Every request is
// classified by the policy engine and either executed immediately, parked as
// a pending approval record for a human to resolve, or refused.  An approved
// record executes its stored effect exactly once; resolution erases the
// payload so a resolved record can never be re-executed.
package gate

// Package patchgate gates the side effects of autonomous agents behind a
// capability policy with a human-in-the-loop approval queue.
//
// Every effect names a capability (read, write, exec, net, secrets, dns,
// deploy).  The active policy decides per capability: auto-approved effects
// execute immediately, reviewable ones park as pending approval records
// until a human approves or denies them, forbidden ones are refused without
// leaving a record.  Write effects are unified diffs applied atomically per
// file under a contained workspace root.
//
// The root package is a façade that wires configuration into a runnable
// daemon:
//
//	cfg, _ := config.Load("patchgate.yaml")
//	rt, _ := patchgate.New(cfg)
//	defer rt.Shutdown(context.Background())
//	_ = rt.Start()
//
// For finer control embed the pieces directly: policy.Engine decides,
// patch.Applicator executes, gate.Service orchestrates, server.Server
// exposes HTTP.
package patchgate

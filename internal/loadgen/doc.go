// Package loadgen launches and supervises populations of virtual players.
//
// An Orchestrator runs one of four load patterns against a single shared
// network simulator:
//
//   - burst: all players start at once
//   - ramp: the cumulative launch count follows elapsed*rate, one tick at a time
//   - repeated_bursts: K bursts run back to back with an idle gap (or as
//     overlapping waves)
//   - sustained: C session loops each run fresh players until the window ends
//
// Every task runs under the scenario deadline. When it passes, running
// players are cancelled and any slot still unresolved after the grace period
// is sealed as timed out, so every launched player appears exactly once in
// Run.Outcomes.
//
// # Basic Usage
//
//	config := loadgen.DefaultConfig()
//	config.Name = "load-burst"
//	orch, err := loadgen.New(config, player.DefaultPlan(url), player.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	orch.Observe(recorder.Record)
//	run, err := orch.Run(ctx)
package loadgen

// Package sim provides the dependency-ranked discrete-event scheduler for gridsim.
//
// # Reading Guide
//
// Start with these files to understand the scheduling kernel:
//   - object.go: the Object contract and the embedded Component base
//   - registry.go: the arena of objects and their dependency ranks
//   - simulator.go: the timestep loop (DoNextUpdate) and fixpoint settling
//
// # Model
//
// Every Object reports ValidUntil, the latest time its state stays correct.
// Each timestep jumps the shared clock to the earliest such time and updates
// the objects due then, in rank order: an object is always updated after the
// objects it depends on. Objects on a dependency cycle share a rank and are
// re-updated together until none of them reports a change (see ChangeReporter),
// or MaxIterations passes have run.
//
// Objects may also ask for an out-of-schedule update with RequestUpdate, for
// example when an upstream value they react to moves.
//
// # Sub-packages
//
//   - sim/weakorder/: strongly connected components and rank computation
//   - sim/trace/: per-timestep update records and run statistics
//   - sim/components/: reusable building blocks (tickers, time series, loads, buses, controllers)
//   - sim/scenario/: YAML scenario loading and simulator construction
package sim

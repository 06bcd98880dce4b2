// Package sim provides the transient CTMC engine for a network of capacity-limited
// assets with phase-type rental times and customer relocation.
//
// # Reading Guide
//
// Start with these files to understand the engine:
//   - localspace.go: compositions of c occupants over k phases, with closed-form rank
//   - asset.go: one asset's local states (capacity split x per-distribution compositions)
//   - statespace.go: the global product state space and index deltas for transitions
//   - generator.go: the sparse generator Q, built in one pass over all states
//   - solver.go: uniformization with underflow-safe time splitting
//   - distribution.go, migrate.go: probability vectors, seeding, marginals, migration
//   - evaluate.go: segment-by-segment evaluation of a System
//
// # Architecture
//
// Static configuration (PhaseType, Asset, RelocationMap, StateSpace) is immutable
// after construction. Traversal state lives in caller-owned values (AssetState,
// Cursor), so independent evaluations may share configuration across goroutines.
//
// Sub-packages build on the core:
//   - sim/params/: parameter directories, relocation rules and YAML scenarios
//   - sim/results/: aggregated measures and CSV output
//   - sim/optimize/: minimal-capacity search under a service level
//   - sim/metrics/: Prometheus collectors implementing Observer
package sim

// Package manager owns backend-instance lifecycle for the proxy: GPU
// placement, starting, health-checking, idle eviction and restart on
// failure. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, Run loop, Reset.
//   - types.go: instance states, Instance, start attempts, injection
//     interfaces (SnapshotSource).
//   - errors.go: error types and Is* helpers (IsPlacement, IsStartTimeout, ...).
//   - acquire.go: Acquire/Release, the shared start attempt, stop paths.
//   - placement.go: least-loaded device selection and LRU idle eviction
//     under the placement critical section.
//   - health.go: liveness probing, failure transitions, backoff restarts.
//   - sweep.go: lazy idle sweep and the hard idle ceiling.
//   - process.go: Launcher/Process/Prober and their exec/HTTP defaults.
//   - status.go: /status reporting.
//   - lru_persist.go: last-used metadata across daemon restarts.
//   - events.go: lifecycle event publishing.
//
// State machine per model:
//
//	Stopped -> Starting -> Ready -> Draining -> Stopped
//	Ready -> Failed -> (Starting ...) -> PermanentlyFailed
//
// A model name maps to at most one non-terminal instance; concurrent
// acquisitions of a Stopped model share one start attempt. Operations that
// mutate a model's state are serialized through the table lock; placement
// decisions run under a separate short-held critical section so two starts
// cannot over-commit a device.
//
// External packages should use public methods only (New, Run, Acquire,
// Release, Status, Reset, ReportBackendError, Close). Internal types are
// subject to change.
package manager

// Package scheduler implements the admission selector: the component that
// decides, on each tick, which queued tasks receive the available execution
// slots. Selection is a single deterministic pass over eligible candidates
// ordered by board priority and task ID, respecting the global concurrency
// cap (time-of-day dependent), per-board exclusivity, per-model and
// per-provider quotas, model rate-limit suppressions, and night-window
// scheduling hints. Everything skipped is accounted for in a histogram so
// an operator can see exactly why the queue is not draining.
package scheduler

// Package outcome implements the outcome state machine: ingesting the
// possibly-duplicated, possibly-concurrent completion report a worker sends
// when it finishes a task, and applying it exactly once. The run_id the
// worker supplies is the idempotency key; a pre-lock lookup handles the
// common retry, a row lock plus re-check handles concurrent delivery, and
// the storage-level uniqueness constraint on run records is the final
// backstop. Accepted outcomes release the worker's lease and move the task
// to review or back to the queue.
package outcome

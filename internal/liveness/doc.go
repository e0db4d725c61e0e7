// Package liveness implements the lease and liveness tracker that detects
// workers which silently died while holding an execution slot and safely
// returns their tasks to the queue. Demotion is the only path, besides a
// worker's own outcome report, that moves a task out of in_progress.
package liveness

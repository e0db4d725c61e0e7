// Package domain defines the core entities of the fleet coordination core:
// tasks and the boards that prioritize them, the leases workers hold while
// executing, the append-only run records produced by accepted outcomes, and
// the model rate-limit records the admission selector consults.
//
// Entities here are plain data with validation; all persistence concerns
// live in the store and platform/postgres packages, and all state-machine
// behavior lives in the scheduler, liveness, and outcome packages.
package domain

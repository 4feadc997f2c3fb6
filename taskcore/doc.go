// Package taskcore implements the in-process parallel execution core: the
// Task/TaskGroup data model and the Executor that runs tasks concurrently
// under a configurable ordering strategy (FIFO, priority, dependency graph,
// or work stealing).
//
// Dependency release policy: a dependent task is only released once every
// one of its prerequisites has reached StatusCompleted. If a
// prerequisite fails or is cancelled, every transitive dependent is itself
// cancelled with ErrDependencyNotSatisfied rather than left queued forever.
package taskcore

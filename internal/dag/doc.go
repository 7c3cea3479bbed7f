// Package dag resolves the object-group dependency graph of a backup task.
//
// Graph is a small generic directed graph with cycle detection; it backs both
// the object-group plan built by Resolve and the task-invocation check done
// when tasks are compiled.
package dag

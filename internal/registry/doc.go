// Package registry is the Exec Registry: the immutable mapping from exec
// identifiers to the process definitions (argument vector, environment
// overrides, accepted exit codes and output verbosity) that pipelines and
// routines run.
//
// The registry is built once from loaded configuration and only read
// afterwards. Every lookup failure is a typed configuration error raised while
// tasks are compiled, before any process is spawned.
package registry

// Package app wires the host maintenance engine together: it loads the
// configuration, compiles every task against the exec registry and the
// compiled-in backends, and runs tasks by id. It is decoupled from any
// specific entrypoint like the CLI.
package app

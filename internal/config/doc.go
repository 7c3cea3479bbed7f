// Package config defines the format-agnostic configuration model: exec
// definitions, backup and routine task definitions and process-wide run
// settings, along with the Loader interface that fills it.
//
// The `config.Model` is the single source of truth for the `dag`, `executor`
// and `routine` packages. Concrete loaders, such as the HCL one, live in
// separate packages.
package config

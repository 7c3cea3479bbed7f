// Package hcl provides the concrete HCL implementation of config.Loader.
// It is responsible for file parsing, include resolution with cycle
// detection, merging of included files and HCL-to-model translation.
package hcl

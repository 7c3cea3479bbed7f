// Package backend defines the storage contract backup tasks write through and
// the rotation policy applied after a successful run.
//
// A Backend is built once per backup task from its parameters. Each run calls
// Begin to allocate a Prefix and obtain a Session; objects are streamed into
// Sinks opened on that session. Concrete backends live under modules/ and
// register a Factory into a Registry.
package backend

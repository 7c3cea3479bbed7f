// Package pipeline runs chains of external processes. A backup object's
// steps are connected stdout to stdin and the last step's output is streamed
// into a backend sink; exit codes are validated once every process exited.
package pipeline

// Package cli parses command-line arguments into a command and the app's
// configuration, and maps failures onto process exit codes.
package cli

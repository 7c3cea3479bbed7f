//go:build !unix

package routine

import "syscall"

var processMask signalMask = unsupportedMask{}

type unsupportedMask struct{}

func (unsupportedMask) Block(...syscall.Signal) error   { return ErrUnsupportedPlatform }
func (unsupportedMask) Unblock(...syscall.Signal) error { return ErrUnsupportedPlatform }
func (unsupportedMask) Blocked() []syscall.Signal       { return nil }

//go:build !linux

package executor

import "runtime"

func cpuCount() int { return runtime.NumCPU() }

//go:build unix

package routine

import (
	"strconv"
	"strings"
	"syscall"

	"github.com/vk/hostmaint/internal/errs"
	"golang.org/x/sys/unix"
)

// ParseSignal resolves a signal name ("int", "SIGINT") or number ("2").
// Names are matched case-insensitively.
func ParseSignal(s string) (syscall.Signal, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		sig := syscall.Signal(n)
		if n <= 0 || unix.SignalName(sig) == "" {
			return 0, errs.Builtinf("unknown signal %q", s)
		}
		return sig, nil
	}
	name := strings.ToUpper(s)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	sig := unix.SignalNum(name)
	if sig == 0 {
		return 0, errs.Builtinf("unknown signal %q", s)
	}
	return sig, nil
}

// SignalName returns the canonical name of sig, e.g. "SIGTERM".
func SignalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return "signal " + strconv.Itoa(int(sig))
}

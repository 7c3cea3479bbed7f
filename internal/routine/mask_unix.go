//go:build unix

package routine

import (
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

var processMask signalMask = newMask()

// mask holds blocked signals the way a process signal mask would: each
// blocked signal is captured into a one-slot channel, so repeated deliveries
// coalesce into one pending signal. Unblocking re-raises what is pending.
// Children never see the mask; signal.Notify only affects this process.
type mask struct {
	mu   sync.Mutex
	held map[syscall.Signal]chan os.Signal
	kill func(pid int, sig syscall.Signal) error
}

func newMask() *mask {
	return &mask{held: make(map[syscall.Signal]chan os.Signal), kill: unix.Kill}
}

func (m *mask) Block(sigs ...syscall.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sig := range sigs {
		if _, ok := m.held[sig]; ok {
			continue
		}
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, sig)
		m.held[sig] = ch
	}
	return nil
}

func (m *mask) Unblock(sigs ...syscall.Signal) error {
	m.mu.Lock()
	var pending []syscall.Signal
	for _, sig := range sigs {
		ch, ok := m.held[sig]
		if !ok {
			continue
		}
		signal.Stop(ch)
		delete(m.held, sig)
		if len(ch) > 0 {
			pending = append(pending, sig)
		}
	}
	m.mu.Unlock()

	for _, sig := range pending {
		if err := m.kill(os.Getpid(), sig); err != nil {
			return err
		}
	}
	return nil
}

func (m *mask) Blocked() []syscall.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]syscall.Signal, 0, len(m.held))
	for sig := range m.held {
		out = append(out, sig)
	}
	slices.Sort(out)
	return out
}

// pending reports whether sig arrived while blocked.
func (m *mask) pending(sig syscall.Signal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.held[sig]
	return ok && len(ch) > 0
}

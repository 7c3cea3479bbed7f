package routine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"syscall"

	"github.com/vk/hostmaint/internal/ctxlog"
	"github.com/vk/hostmaint/internal/errs"
	"github.com/zclconf/go-cty/cty"
)

// ErrUnsupportedPlatform is returned by builtins the host OS cannot provide.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

type signalMask interface {
	Block(sigs ...syscall.Signal) error
	Unblock(sigs ...syscall.Signal) error
	Blocked() []syscall.Signal
}

// MaskAction is one entry of a sigmask parameter list.
type MaskAction struct {
	Block   bool
	Signals []syscall.Signal
}

func (a MaskAction) String() string {
	names := make([]string, len(a.Signals))
	for i, sig := range a.Signals {
		names[i] = SignalName(sig)
	}
	action := "unblock"
	if a.Block {
		action = "block"
	}
	return action + "(" + strings.Join(names, ",") + ")"
}

// Sigmask blocks or unblocks signals for the whole process.
//
// Blocking only holds signals sent to hostmaint itself. It does not change
// the kernel signal mask, so child processes started while a signal is
// blocked do not inherit it: a terminal SIGINT still reaches every process in
// the foreground process group. Run children under setsid or nohup when they
// must survive it.
type Sigmask struct {
	Actions []MaskAction
	mask    signalMask
}

// NewSigmask parses param, a list of {action = "block"|"unblock", sig = [...]}
// objects. Signals are given by name or number.
func NewSigmask(param cty.Value) (Builtin, error) {
	if param.IsNull() {
		return nil, errs.Builtinf("sigmask: missing param")
	}
	ty := param.Type()
	if !ty.IsTupleType() && !ty.IsListType() {
		return nil, errs.Builtinf("sigmask: param must be a list of objects, got %s", ty.FriendlyName())
	}
	s := &Sigmask{mask: processMask}
	for i, it := 0, param.ElementIterator(); it.Next(); i++ {
		_, v := it.Element()
		a, err := parseMaskAction(v)
		if err != nil {
			return nil, fmt.Errorf("sigmask param %d: %w", i, err)
		}
		s.Actions = append(s.Actions, a)
	}
	return s, nil
}

func parseMaskAction(v cty.Value) (MaskAction, error) {
	var a MaskAction
	if v.IsNull() || !(v.Type().IsObjectType() || v.Type().IsMapType()) {
		return a, errs.Builtinf("expected an object")
	}
	action, err := attr(v, "action")
	if err != nil {
		return a, err
	}
	if action.Type() != cty.String {
		return a, errs.Builtinf("action must be a string")
	}
	switch strings.ToLower(action.AsString()) {
	case "block":
		a.Block = true
	case "unblock":
	default:
		return a, errs.Builtinf("unknown action %q", action.AsString())
	}

	sigs, err := attr(v, "sig")
	if err != nil {
		return a, err
	}
	if !sigs.CanIterateElements() {
		return a, errs.Builtinf("sig must be a list")
	}
	for it := sigs.ElementIterator(); it.Next(); {
		_, sv := it.Element()
		sig, err := signalValue(sv)
		if err != nil {
			return a, err
		}
		if sig == syscall.SIGKILL || sig == syscall.SIGSTOP {
			return a, errs.Builtinf("%s cannot be blocked", SignalName(sig))
		}
		a.Signals = append(a.Signals, sig)
	}
	return a, nil
}

func attr(v cty.Value, name string) (cty.Value, error) {
	if v.Type().IsObjectType() {
		if !v.Type().HasAttribute(name) {
			return cty.NilVal, errs.Builtinf("missing %q", name)
		}
		return v.GetAttr(name), nil
	}
	key := cty.StringVal(name)
	if !v.HasIndex(key).True() {
		return cty.NilVal, errs.Builtinf("missing %q", name)
	}
	return v.Index(key), nil
}

func signalValue(v cty.Value) (syscall.Signal, error) {
	if v.IsNull() || !v.IsKnown() {
		return 0, errs.Builtinf("null signal")
	}
	switch v.Type() {
	case cty.String:
		return ParseSignal(v.AsString())
	case cty.Number:
		bf := v.AsBigFloat()
		if !bf.IsInt() {
			return 0, errs.Builtinf("signal %s is not an integer", bf.Text('g', -1))
		}
		n, _ := bf.Int(new(big.Int))
		return ParseSignal(n.String())
	default:
		return 0, errs.Builtinf("signal must be a name or number, got %s", v.Type().FriendlyName())
	}
}

// Run applies the actions in order.
func (s *Sigmask) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	for _, a := range s.Actions {
		var err error
		if a.Block {
			err = s.mask.Block(a.Signals...)
		} else {
			err = s.mask.Unblock(a.Signals...)
		}
		if err != nil {
			return &errs.Error{Kind: errs.ErrBuiltin, Msg: "sigmask " + a.String(), Err: err}
		}
		logger.Debug("Applied signal mask.", "action", a.String())
	}
	return nil
}

func (s *Sigmask) String() string {
	parts := make([]string, len(s.Actions))
	for i, a := range s.Actions {
		parts[i] = a.String()
	}
	return "sigmask[" + strings.Join(parts, " ") + "]"
}
